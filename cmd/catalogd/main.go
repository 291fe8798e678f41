// catalogd is a local stand-in for the external product catalog service.
// It serves GET /product/{id} with optional failure injection so the
// enrichment client's retry path can be exercised end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"salespipe/internal/logger"
	"salespipe/internal/model"
)

var catalog = map[string]model.ProductInfo{
	"P101": {Category: "laptops", Brand: "Lenza", Rating: 4.5},
	"P102": {Category: "accessories", Brand: "Clickio", Rating: 4.1},
	"P103": {Category: "accessories", Brand: "Keytron", Rating: 3.9},
	"P104": {Category: "monitors", Brand: "ViewMax", Rating: 4.3},
	"P105": {Category: "audio", Brand: "Soniq", Rating: 4.0},
}

func main() {
	var (
		addr     string
		failRate float64
		latency  time.Duration
		logMode  string
	)
	flag.StringVar(&addr, "addr", ":9191", "listen address")
	flag.Float64Var(&failRate, "fail-rate", 0, "probability of responding 500")
	flag.DurationVar(&latency, "latency", 0, "artificial per-request latency")
	flag.StringVar(&logMode, "log-mode", "dev", "logger mode: dev|prod")
	flag.Parse()

	log, err := logger.New(logMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	mux := http.NewServeMux()
	mux.HandleFunc("/product/", func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		mu.Lock()
		fail := rng.Float64() < failRate
		mu.Unlock()
		if fail {
			log.Warn("injected failure", "path", r.URL.Path)
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/product/")
		info, ok := catalog[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "products": len(catalog)})
	})

	log.Info("catalogd listening", "addr", addr, "failRate", failRate, "latency", latency)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("serve", "err", err)
	}
}
