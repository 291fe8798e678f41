// Package ingest reads raw records from the supported input boundaries:
// pipe-delimited text, JSONL, or a Kafka topic. Text encodings are assumed
// resolved upstream.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"salespipe/internal/model"
)

// ReadPipeFile parses a pipe-delimited file whose first line names the
// fields. Rows with the wrong field count are skipped and counted; their
// content never reaches the pipeline.
func ReadPipeFile(path string) ([]model.RawRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return nil, 0, fmt.Errorf("read header: %w", err)
		}
		return nil, 0, nil
	}
	header := strings.Split(strings.TrimSpace(s.Text()), "|")

	var out []model.RawRecord
	skipped := 0
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != len(header) {
			skipped++
			continue
		}
		raw := make(model.RawRecord, len(header))
		for i, name := range header {
			raw[strings.TrimSpace(name)] = parts[i]
		}
		out = append(out, raw)
	}
	if err := s.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan input: %w", err)
	}
	return out, skipped, nil
}

// ReadJSONLFile parses one JSON object per line into raw records.
func ReadJSONLFile(path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var out []model.RawRecord
	s := bufio.NewScanner(f)
	line := 0
	for s.Scan() {
		line++
		if strings.TrimSpace(s.Text()) == "" {
			continue
		}
		var raw model.RawRecord
		if err := json.Unmarshal(s.Bytes(), &raw); err != nil {
			return nil, fmt.Errorf("unmarshal line %d: %w", line, err)
		}
		out = append(out, raw)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return out, nil
}
