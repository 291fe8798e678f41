package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"salespipe/internal/model"
)

func main() {
	var (
		count      int
		outputFile string
		format     string
		dirtyPct   int
		seed       int64
	)
	flag.IntVar(&count, "count", 100, "number of records to generate")
	flag.StringVar(&outputFile, "output", "sales_data.txt", "output file")
	flag.StringVar(&format, "format", "pipe", "output format: pipe|jsonl")
	flag.IntVar(&dirtyPct, "dirty", 10, "percent of malformed/invalid rows")
	flag.Int64Var(&seed, "seed", 0, "rng seed (0 uses current time)")
	flag.Parse()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if err := generate(count, outputFile, format, dirtyPct, rand.New(rand.NewSource(seed))); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

var (
	regions   = []string{"North", "South", "East", "West"}
	products  = []string{"P101", "P102", "P103", "P104", "P105"}
	customers = []string{"C001", "C002", "C003", "C004", "C005", "C006"}
)

var fields = []string{
	model.FieldTransactionID,
	model.FieldDate,
	model.FieldProductID,
	model.FieldCustomerID,
	model.FieldAmount,
	model.FieldQuantity,
	model.FieldRegion,
}

func generate(count int, outputFile string, format string, dirtyPct int, rng *rand.Rand) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if format == "pipe" {
		if _, err := fmt.Fprintln(file, strings.Join(fields, "|")); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	enc := json.NewEncoder(file)
	baseDate := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		raw := model.RawRecord{
			model.FieldTransactionID: fmt.Sprintf("T%04d", i+1),
			model.FieldDate:          baseDate.AddDate(0, 0, i%14).Format(model.DateLayout),
			model.FieldProductID:     products[rng.Intn(len(products))],
			model.FieldCustomerID:    customers[rng.Intn(len(customers))],
			model.FieldAmount:        fmt.Sprintf("₹%d,%03d", 1+rng.Intn(45), rng.Intn(1000)),
			model.FieldQuantity:      fmt.Sprintf("%d", 1+rng.Intn(5)),
			model.FieldRegion:        regions[rng.Intn(len(regions))],
		}
		if rng.Intn(100) < dirtyPct {
			dirty(raw, rng)
		}

		if format == "jsonl" {
			if err := enc.Encode(raw); err != nil {
				return fmt.Errorf("encode record %d: %w", i+1, err)
			}
			continue
		}
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, raw[f])
		}
		if _, err := fmt.Fprintln(file, strings.Join(parts, "|")); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
	}

	log.Printf("generated %d records to %s", count, outputFile)
	return nil
}

// dirty mutates one record into a malformed or invalid row so downstream
// stages have something to reject.
func dirty(raw model.RawRecord, rng *rand.Rand) {
	switch rng.Intn(6) {
	case 0:
		raw[model.FieldTransactionID] = "B" + raw[model.FieldTransactionID][1:]
	case 1:
		raw[model.FieldDate] = "12/01/2024"
	case 2:
		raw[model.FieldAmount] = "-500"
	case 3:
		raw[model.FieldQuantity] = "0"
	case 4:
		raw[model.FieldRegion] = ""
	default:
		raw[model.FieldAmount] = "abc"
	}
}
