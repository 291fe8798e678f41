package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RecordsRead prometheus.Counter
	Malformed   *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
	Admitted    prometheus.Counter
	Duplicates  prometheus.Counter
	ZeroAmount  prometheus.Counter

	// Enrichment stage
	LookupAttempts   prometheus.Counter
	LookupRetries    prometheus.Counter
	LookupCacheHits  prometheus.Counter
	Enriched         prometheus.Counter
	Unenriched       *prometheus.CounterVec
	LookupLatencySec prometheus.Histogram

	BatchDurationSec prometheus.Gauge
	BatchRevenue     prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	recordsRead := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_records_read_total"})
	malformed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "salespipe_records_malformed_total"}, []string{"kind"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "salespipe_records_rejected_total"}, []string{"reason"})
	admitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_records_admitted_total"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_records_duplicate_total"})
	zeroAmount := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_records_zero_amount_total"})

	lookupAttempts := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_lookup_attempts_total"})
	lookupRetries := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_lookup_retries_total"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_lookup_cache_hits_total"})
	enriched := prometheus.NewCounter(prometheus.CounterOpts{Name: "salespipe_records_enriched_total"})
	unenriched := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "salespipe_records_unenriched_total"}, []string{"cause"})
	lookupLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "salespipe_lookup_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})

	batchDuration := prometheus.NewGauge(prometheus.GaugeOpts{Name: "salespipe_batch_duration_seconds"})
	batchRevenue := prometheus.NewGauge(prometheus.GaugeOpts{Name: "salespipe_batch_total_revenue"})

	r.MustRegister(recordsRead, malformed, rejected, admitted, duplicates, zeroAmount,
		lookupAttempts, lookupRetries, cacheHits, enriched, unenriched, lookupLatency,
		batchDuration, batchRevenue)
	return &Registry{
		reg:              r,
		RecordsRead:      recordsRead,
		Malformed:        malformed,
		Rejected:         rejected,
		Admitted:         admitted,
		Duplicates:       duplicates,
		ZeroAmount:       zeroAmount,
		LookupAttempts:   lookupAttempts,
		LookupRetries:    lookupRetries,
		LookupCacheHits:  cacheHits,
		Enriched:         enriched,
		Unenriched:       unenriched,
		LookupLatencySec: lookupLatency,
		BatchDurationSec: batchDuration,
		BatchRevenue:     batchRevenue,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
