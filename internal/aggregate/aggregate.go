// Package aggregate folds enriched sales records into summary statistics.
package aggregate

import (
	"math"
	"sort"

	"salespipe/internal/model"
)

// TopN is the ranking depth for product and customer leaderboards.
const TopN = 5

// RegionStat is revenue grouped by region. Share is percent of total
// revenue, rounded to two decimals.
type RegionStat struct {
	Region  string  `json:"region"`
	Revenue float64 `json:"revenue"`
	Count   int64   `json:"count"`
	Share   float64 `json:"share"`
}

// EntityStat ranks one product or customer by summed revenue.
type EntityStat struct {
	ID       string  `json:"id"`
	Revenue  float64 `json:"revenue"`
	Count    int64   `json:"count"`
	Quantity int64   `json:"quantity"`
}

// DailyStat is revenue summed over one calendar day.
type DailyStat struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Count   int64   `json:"count"`
}

// CategoryStat is revenue grouped by catalog category. Computed over the
// enriched subset only; unenriched records have no category.
type CategoryStat struct {
	Category string  `json:"category"`
	Revenue  float64 `json:"revenue"`
	Count    int64   `json:"count"`
}

// Aggregate is the complete derived statistics for one run. It is
// recomputed fully each run; there is no incremental update path.
type Aggregate struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	TransactionCount  int64   `json:"transactionCount"`
	AverageOrderValue float64 `json:"averageOrderValue"`

	Regions      []RegionStat   `json:"regions"`
	TopProducts  []EntityStat   `json:"topProducts"`
	TopCustomers []EntityStat   `json:"topCustomers"`
	Daily        []DailyStat    `json:"daily"`
	Categories   []CategoryStat `json:"categories"`

	EnrichedCount            int64   `json:"enrichedCount"`
	EnrichmentRatio          float64 `json:"enrichmentRatio"`
	DistinctProductsEnriched int64   `json:"distinctProductsEnriched"`
}

// Compute folds the final record set into an Aggregate. Enrichment status
// never excludes a record from revenue math; it only feeds the ratio and
// the category breakdown. An empty batch yields a valid zero aggregate.
func Compute(records []model.EnrichedRecord) Aggregate {
	agg := Aggregate{TransactionCount: int64(len(records))}

	regions := make(map[string]*sums)
	products := make(map[string]*sums)
	customers := make(map[string]*sums)
	daily := make(map[string]*sums)
	categories := make(map[string]*sums)
	enrichedProducts := make(map[string]bool)

	bump := func(m map[string]*sums, key string, rec model.SalesRecord) {
		s := m[key]
		if s == nil {
			s = &sums{}
			m[key] = s
		}
		s.revenue += rec.Amount
		s.count++
		s.quantity += rec.Quantity
	}

	for _, er := range records {
		rec := er.Record
		agg.TotalRevenue += rec.Amount
		bump(regions, rec.Region, rec)
		bump(products, rec.ProductID, rec)
		bump(customers, rec.CustomerID, rec)
		bump(daily, rec.Day(), rec)
		if er.Enriched() {
			agg.EnrichedCount++
			enrichedProducts[rec.ProductID] = true
			bump(categories, er.Product.Category, rec)
		}
	}

	if agg.TransactionCount > 0 {
		agg.AverageOrderValue = agg.TotalRevenue / float64(agg.TransactionCount)
		agg.EnrichmentRatio = float64(agg.EnrichedCount) / float64(agg.TransactionCount)
	}
	agg.DistinctProductsEnriched = int64(len(enrichedProducts))

	for region, s := range regions {
		st := RegionStat{Region: region, Revenue: s.revenue, Count: s.count}
		if agg.TotalRevenue > 0 {
			st.Share = round2(s.revenue / agg.TotalRevenue * 100)
		}
		agg.Regions = append(agg.Regions, st)
	}
	sort.Slice(agg.Regions, func(i, j int) bool {
		a, b := agg.Regions[i], agg.Regions[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Region < b.Region
	})

	agg.TopProducts = topEntities(products)
	agg.TopCustomers = topEntities(customers)

	for day, s := range daily {
		agg.Daily = append(agg.Daily, DailyStat{Date: day, Revenue: s.revenue, Count: s.count})
	}
	sort.Slice(agg.Daily, func(i, j int) bool { return agg.Daily[i].Date < agg.Daily[j].Date })

	for cat, s := range categories {
		agg.Categories = append(agg.Categories, CategoryStat{Category: cat, Revenue: s.revenue, Count: s.count})
	}
	sort.Slice(agg.Categories, func(i, j int) bool {
		a, b := agg.Categories[i], agg.Categories[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Category < b.Category
	})

	return agg
}

type sums struct {
	revenue  float64
	count    int64
	quantity int64
}

// topEntities ranks by revenue descending with identifier-ascending
// tie-break and truncates to TopN. Fewer entities yields a shorter list.
func topEntities(m map[string]*sums) []EntityStat {
	out := make([]EntityStat, 0, len(m))
	for id, s := range m {
		out = append(out, EntityStat{ID: id, Revenue: s.revenue, Count: s.count, Quantity: s.quantity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
