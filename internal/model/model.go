package model

import "time"

// DateLayout is the single accepted date format for raw input.
const DateLayout = "2006-01-02"

// Field names expected in a RawRecord.
const (
	FieldTransactionID = "TransactionID"
	FieldDate          = "Date"
	FieldProductID     = "ProductID"
	FieldCustomerID    = "CustomerID"
	FieldRegion        = "Region"
	FieldAmount        = "Amount"
	FieldQuantity      = "Quantity"
)

// RawRecord is one source row as delivered by the ingestion layer:
// field name -> raw string, encoding already resolved upstream.
type RawRecord map[string]string

// SalesRecord is the canonical record produced by normalization.
type SalesRecord struct {
	TransactionID string    `json:"transactionId"`
	ProductID     string    `json:"productId"`
	CustomerID    string    `json:"customerId"`
	Region        string    `json:"region"`
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	Quantity      int64     `json:"quantity"`
}

// Day returns the record's calendar date in the canonical wire format.
func (r SalesRecord) Day() string { return r.Date.Format(DateLayout) }

// ProductInfo is the catalog metadata attached during enrichment.
type ProductInfo struct {
	Category string  `json:"category"`
	Brand    string  `json:"brand"`
	Rating   float64 `json:"rating"`
}

// EnrichmentCause classifies why a record stayed unenriched.
type EnrichmentCause string

const (
	CauseNotFound  EnrichmentCause = "not_found"
	CauseExhausted EnrichmentCause = "exhausted"
	CauseTimeout   EnrichmentCause = "timeout"
)

// EnrichedRecord pairs an admitted record with its enrichment outcome.
// Product is nil when the lookup failed; Cause is empty when it succeeded.
// Both shapes proceed to aggregation.
type EnrichedRecord struct {
	Record  SalesRecord     `json:"record"`
	Product *ProductInfo    `json:"product,omitempty"`
	Cause   EnrichmentCause `json:"cause,omitempty"`
}

// Enriched reports whether the catalog lookup succeeded for this record.
func (e EnrichedRecord) Enriched() bool { return e.Product != nil }
