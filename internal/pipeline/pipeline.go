// Package pipeline sequences normalization, validation, enrichment, and
// aggregation over one batch of raw records.
package pipeline

import (
	"context"
	"errors"
	"time"

	"salespipe/internal/aggregate"
	"salespipe/internal/config"
	"salespipe/internal/enrich"
	"salespipe/internal/logger"
	"salespipe/internal/metrics"
	"salespipe/internal/model"
	"salespipe/internal/normalize"
	"salespipe/internal/validate"
)

// Counts are the per-run tallies surfaced to the reporting layer next to
// the Aggregate. Record-scoped failures are captured here, never raised
// past a stage boundary.
type Counts struct {
	Read        int64            `json:"read"`
	Malformed   map[string]int64 `json:"malformed,omitempty"`
	Rejected    map[string]int64 `json:"rejected,omitempty"`
	Admitted    int64            `json:"admitted"`
	Duplicates  int64            `json:"duplicates"`
	ZeroAmount  int64            `json:"zeroAmount"`
	FilteredOut int64            `json:"filteredOut"`
	Unenriched  map[string]int64 `json:"unenriched,omitempty"`
}

// Result is the complete output of one run: the Aggregate plus the tallies
// and the final record set, handed to sinks as plain structured data.
type Result struct {
	Aggregate aggregate.Aggregate    `json:"aggregate"`
	Counts    Counts                 `json:"counts"`
	Records   []model.EnrichedRecord `json:"-"`
	Duration  time.Duration          `json:"-"`
}

// Pipeline carries one batch through every stage. Construct once per
// process; Run may be called repeatedly with fresh batches.
type Pipeline struct {
	rules  validate.Rules
	filter config.FilterConfig
	client *enrich.Client
	log    *logger.Logger
	mreg   *metrics.Registry
}

func New(rules validate.Rules, filter config.FilterConfig, client *enrich.Client, log *logger.Logger, mreg *metrics.Registry) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{rules: rules, filter: filter, client: client, log: log, mreg: mreg}
}

// Run executes the full pipeline over one immutable input batch. It always
// produces a Result: an empty or fully-rejected batch yields a valid zero
// aggregate, and an unreachable catalog leaves every record unenriched.
func (p *Pipeline) Run(ctx context.Context, raws []model.RawRecord) *Result {
	start := time.Now()
	res := &Result{Counts: Counts{
		Read:       int64(len(raws)),
		Malformed:  make(map[string]int64),
		Rejected:   make(map[string]int64),
		Unenriched: make(map[string]int64),
	}}
	if p.mreg != nil {
		p.mreg.RecordsRead.Add(float64(len(raws)))
	}

	// Normalize. Malformed rows are dropped before validation and counted
	// in a bucket separate from validation rejections.
	normalized := make([]model.SalesRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := normalize.Normalize(raw)
		if err != nil {
			var nerr *normalize.Error
			kind := string(normalize.KindBadAmount)
			if errors.As(err, &nerr) {
				kind = string(nerr.Kind)
			}
			res.Counts.Malformed[kind]++
			if p.mreg != nil {
				p.mreg.Malformed.WithLabelValues(kind).Inc()
			}
			continue
		}
		normalized = append(normalized, rec)
	}

	// Validate. The first failing rule determines the reason; rejected
	// records are retained only as counts.
	admitted, rejected := p.rules.Partition(normalized)
	for _, r := range rejected {
		res.Counts.Rejected[string(r.Reason)]++
		if p.mreg != nil {
			p.mreg.Rejected.WithLabelValues(string(r.Reason)).Inc()
		}
	}
	records := make([]model.SalesRecord, 0, len(admitted))
	for _, r := range admitted {
		if r.ZeroAmount {
			res.Counts.ZeroAmount++
			if p.mreg != nil {
				p.mreg.ZeroAmount.Inc()
			}
		}
		records = append(records, r.Record)
	}
	res.Counts.Admitted = int64(len(records))
	if p.mreg != nil {
		p.mreg.Admitted.Add(float64(len(records)))
	}

	// Transaction ids are unique within a batch; a repeated id keeps its
	// first occurrence so reruns cannot double-count revenue.
	seen := make(map[string]bool, len(records))
	deduped := records[:0]
	for _, rec := range records {
		if seen[rec.TransactionID] {
			res.Counts.Duplicates++
			if p.mreg != nil {
				p.mreg.Duplicates.Inc()
			}
			continue
		}
		seen[rec.TransactionID] = true
		deduped = append(deduped, rec)
	}
	records = deduped

	// Optional batch filter, applied between validation and enrichment.
	if p.filter.Region != "" || p.filter.MinAmount != nil || p.filter.MaxAmount != nil {
		kept := records[:0]
		for _, rec := range records {
			if p.keep(rec) {
				kept = append(kept, rec)
			} else {
				res.Counts.FilteredOut++
			}
		}
		records = kept
	}

	// Enrich. Best-effort with partial-success semantics: a failed lookup
	// leaves the record unenriched but in the batch.
	enriched := p.client.Enrich(ctx, records)
	for _, er := range enriched {
		if er.Enriched() {
			if p.mreg != nil {
				p.mreg.Enriched.Inc()
			}
			continue
		}
		res.Counts.Unenriched[string(er.Cause)]++
		if p.mreg != nil {
			p.mreg.Unenriched.WithLabelValues(string(er.Cause)).Inc()
		}
	}

	res.Records = enriched
	res.Aggregate = aggregate.Compute(enriched)
	res.Duration = time.Since(start)
	if p.mreg != nil {
		p.mreg.BatchDurationSec.Set(res.Duration.Seconds())
		p.mreg.BatchRevenue.Set(res.Aggregate.TotalRevenue)
	}

	p.log.Info("batch complete",
		"read", res.Counts.Read,
		"admitted", res.Counts.Admitted,
		"rejected", len(rejected),
		"filtered", res.Counts.FilteredOut,
		"enriched", res.Aggregate.EnrichedCount,
		"revenue", res.Aggregate.TotalRevenue,
		"took", res.Duration)
	return res
}

func (p *Pipeline) keep(rec model.SalesRecord) bool {
	if p.filter.Region != "" && rec.Region != p.filter.Region {
		return false
	}
	if p.filter.MinAmount != nil && rec.Amount < *p.filter.MinAmount {
		return false
	}
	if p.filter.MaxAmount != nil && rec.Amount > *p.filter.MaxAmount {
		return false
	}
	return true
}
