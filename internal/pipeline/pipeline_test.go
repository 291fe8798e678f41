package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salespipe/internal/config"
	"salespipe/internal/enrich"
	"salespipe/internal/model"
	"salespipe/internal/validate"
)

func rawRec(tx, date, product, customer, region, amount, qty string) model.RawRecord {
	return model.RawRecord{
		model.FieldTransactionID: tx,
		model.FieldDate:          date,
		model.FieldProductID:     product,
		model.FieldCustomerID:    customer,
		model.FieldRegion:        region,
		model.FieldAmount:        amount,
		model.FieldQuantity:      qty,
	}
}

// testCatalog answers every product except those listed in missing.
func testCatalog(missing ...string) http.Handler {
	gone := make(map[string]bool)
	for _, id := range missing {
		gone[id] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/product/")
		if gone[id] {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(model.ProductInfo{Category: "cat-" + id, Brand: "b", Rating: 4})
	})
}

func newTestPipeline(t *testing.T, baseURL string, rules validate.Rules, filter config.FilterConfig) *Pipeline {
	t.Helper()
	client := enrich.NewClient(enrich.Config{
		BaseURL:        baseURL,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}, nil, nil, nil)
	return New(rules, filter, client, nil, nil)
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(testCatalog("P404"))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	raws := []model.RawRecord{
		rawRec("T0001", "2024-03-15", "P101", "C001", "North", "₹100", "1"),
		rawRec("T0002", "2024-03-15", "P101", "C002", "South", "200", "2"),
		rawRec("T0003", "2024-03-16", "P404", "C001", "South", "50", "1"),
		rawRec("T0004", "15/03/2024", "P101", "C001", "North", "100", "1"),
		rawRec("T0005", "2024-03-15", "P101", "C001", "North", "-10", "1"),
	}
	res := p.Run(context.Background(), raws)

	if res.Counts.Read != 5 {
		t.Fatalf("read=%d want 5", res.Counts.Read)
	}
	if got := res.Counts.Malformed["bad_date"]; got != 1 {
		t.Fatalf("malformed[bad_date]=%d want 1", got)
	}
	if got := res.Counts.Rejected["negative_amount"]; got != 1 {
		t.Fatalf("rejected[negative_amount]=%d want 1", got)
	}
	if res.Counts.Admitted != 3 {
		t.Fatalf("admitted=%d want 3", res.Counts.Admitted)
	}
	if got := res.Counts.Unenriched["not_found"]; got != 1 {
		t.Fatalf("unenriched[not_found]=%d want 1", got)
	}

	agg := res.Aggregate
	if !near(agg.TotalRevenue, 350) {
		t.Fatalf("revenue=%v want 350", agg.TotalRevenue)
	}
	if agg.TransactionCount != 3 {
		t.Fatalf("transactions=%d want 3", agg.TransactionCount)
	}
	if !near(agg.AverageOrderValue, 116.67) {
		t.Fatalf("aov=%v want 116.67", agg.AverageOrderValue)
	}
	if len(agg.Regions) != 2 || agg.Regions[0].Region != "South" || !near(agg.Regions[0].Share, 71.43) {
		t.Fatalf("regions=%+v", agg.Regions)
	}
	if agg.EnrichedCount != 2 {
		t.Fatalf("enriched=%d want 2", agg.EnrichedCount)
	}

	// Record order matches admission order.
	if len(res.Records) != 3 || res.Records[0].Record.TransactionID != "T0001" || res.Records[2].Record.TransactionID != "T0003" {
		t.Fatalf("records out of order: %+v", res.Records)
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	p := newTestPipeline(t, "http://127.0.0.1:0", validate.Rules{}, config.FilterConfig{})
	res := p.Run(context.Background(), nil)
	if res == nil {
		t.Fatalf("nil result")
	}
	if res.Counts.Read != 0 || res.Aggregate.TransactionCount != 0 || res.Aggregate.TotalRevenue != 0 {
		t.Fatalf("empty batch result: %+v", res)
	}
}

func TestRun_AllRejected(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	raws := []model.RawRecord{
		rawRec("T1", "2024-03-15", "P1", "C1", "", "100", "1"),
		rawRec("T2", "2024-03-15", "P1", "C1", "North", "-5", "1"),
	}
	res := p.Run(context.Background(), raws)
	if res.Counts.Admitted != 0 {
		t.Fatalf("admitted=%d want 0", res.Counts.Admitted)
	}
	if res.Aggregate.TransactionCount != 0 || res.Aggregate.AverageOrderValue != 0 {
		t.Fatalf("aggregate not zero: %+v", res.Aggregate)
	}
}

func TestRun_CatalogUnreachable(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	srv.Close()

	p := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	raws := []model.RawRecord{
		rawRec("T1", "2024-03-15", "P1", "C1", "North", "100", "1"),
		rawRec("T2", "2024-03-15", "P2", "C2", "South", "200", "1"),
	}
	res := p.Run(context.Background(), raws)

	if got := res.Counts.Unenriched["exhausted"]; got != 2 {
		t.Fatalf("unenriched[exhausted]=%d want 2", got)
	}
	if !near(res.Aggregate.TotalRevenue, 300) {
		t.Fatalf("revenue=%v want 300, unenriched records must still aggregate", res.Aggregate.TotalRevenue)
	}
	if res.Aggregate.EnrichedCount != 0 {
		t.Fatalf("enriched=%d want 0", res.Aggregate.EnrichedCount)
	}
}

func TestRun_NonFiniteAmountsNeverReachAggregation(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	raws := []model.RawRecord{
		rawRec("T1", "2024-03-15", "P1", "C1", "North", "NaN", "1"),
		rawRec("T2", "2024-03-15", "P1", "C1", "North", "Inf", "1"),
		rawRec("T3", "2024-03-15", "P1", "C1", "North", "100", "1"),
	}
	res := p.Run(context.Background(), raws)

	if got := res.Counts.Malformed["bad_amount"]; got != 2 {
		t.Fatalf("malformed[bad_amount]=%d want 2", got)
	}
	if res.Counts.Admitted != 1 {
		t.Fatalf("admitted=%d want 1", res.Counts.Admitted)
	}
	if math.IsNaN(res.Aggregate.TotalRevenue) || math.IsInf(res.Aggregate.TotalRevenue, 0) {
		t.Fatalf("revenue poisoned: %v", res.Aggregate.TotalRevenue)
	}
	if !near(res.Aggregate.TotalRevenue, 100) || !near(res.Aggregate.AverageOrderValue, 100) {
		t.Fatalf("aggregate: %+v", res.Aggregate)
	}
}

func TestRun_DuplicateTransactionFirstWins(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	raws := []model.RawRecord{
		rawRec("T1", "2024-03-15", "P1", "C1", "North", "100", "1"),
		rawRec("T1", "2024-03-16", "P2", "C2", "South", "999", "3"),
		rawRec("T2", "2024-03-15", "P1", "C1", "North", "50", "1"),
	}
	res := p.Run(context.Background(), raws)

	if res.Counts.Duplicates != 1 {
		t.Fatalf("duplicates=%d want 1", res.Counts.Duplicates)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records=%d want 2", len(res.Records))
	}
	first := res.Records[0].Record
	if first.TransactionID != "T1" || first.Amount != 100 || first.Region != "North" {
		t.Fatalf("first occurrence not kept: %+v", first)
	}
	if !near(res.Aggregate.TotalRevenue, 150) {
		t.Fatalf("revenue=%v want 150, duplicate double-counted", res.Aggregate.TotalRevenue)
	}
}

func TestRun_ZeroAmountConfigurable(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	defer srv.Close()

	raws := []model.RawRecord{rawRec("T1", "2024-03-15", "P1", "C1", "North", "0", "1")}

	admit := newTestPipeline(t, srv.URL, validate.Rules{}, config.FilterConfig{})
	res := admit.Run(context.Background(), raws)
	if res.Counts.Admitted != 1 || res.Counts.ZeroAmount != 1 {
		t.Fatalf("default admit: %+v", res.Counts)
	}

	reject := newTestPipeline(t, srv.URL, validate.Rules{RejectZeroAmount: true}, config.FilterConfig{})
	res = reject.Run(context.Background(), raws)
	if res.Counts.Admitted != 0 || res.Counts.Rejected["zero_amount"] != 1 {
		t.Fatalf("strict reject: %+v", res.Counts)
	}
}

func TestRun_BatchFilter(t *testing.T) {
	srv := httptest.NewServer(testCatalog())
	defer srv.Close()

	min, max := 50.0, 150.0
	filter := config.FilterConfig{Region: "North", MinAmount: &min, MaxAmount: &max}
	p := newTestPipeline(t, srv.URL, validate.Rules{}, filter)
	raws := []model.RawRecord{
		rawRec("T1", "2024-03-15", "P1", "C1", "North", "100", "1"),
		rawRec("T2", "2024-03-15", "P1", "C1", "South", "100", "1"),
		rawRec("T3", "2024-03-15", "P1", "C1", "North", "25", "1"),
		rawRec("T4", "2024-03-15", "P1", "C1", "North", "500", "1"),
	}
	res := p.Run(context.Background(), raws)

	if res.Counts.FilteredOut != 3 {
		t.Fatalf("filteredOut=%d want 3", res.Counts.FilteredOut)
	}
	if len(res.Records) != 1 || res.Records[0].Record.TransactionID != "T1" {
		t.Fatalf("records=%+v want only T1", res.Records)
	}
}
