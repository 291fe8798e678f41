// Package validate applies business rules to normalized sales records.
package validate

import (
	"strings"

	"salespipe/internal/model"
)

// Reason is the closed set of rejection reasons surfaced to reporting.
type Reason string

const (
	ReasonMissingID      Reason = "missing_id"
	ReasonNegativeAmount Reason = "negative_amount"
	ReasonZeroAmount     Reason = "zero_amount"
	ReasonZeroQuantity   Reason = "zero_quantity"
	ReasonMissingRegion  Reason = "missing_region"
)

// Reasons lists every rejection reason, for metrics pre-registration.
var Reasons = []Reason{
	ReasonMissingID,
	ReasonNegativeAmount,
	ReasonZeroAmount,
	ReasonZeroQuantity,
	ReasonMissingRegion,
}

// placeholders are values that satisfy "non-empty" but carry no identity.
var placeholders = map[string]bool{
	"n/a": true, "na": true, "null": true, "none": true, "-": true, "unknown": true,
}

// Rules configures the validation engine. The zero-value Rules admits
// zero-amount transactions (treated as comped) and flags them in metrics.
type Rules struct {
	// RejectZeroAmount rejects amount == 0 instead of admitting it flagged.
	RejectZeroAmount bool
}

// Result tags a record as admitted (empty Reason) or rejected.
type Result struct {
	Record model.SalesRecord
	Reason Reason
	// ZeroAmount marks an admitted comped transaction for metrics.
	ZeroAmount bool
}

// Admitted reports whether the record passed every rule.
func (r Result) Admitted() bool { return r.Reason == "" }

// Validate applies the rules in a fixed order; the first failing rule
// determines the reason so rejection is deterministic and reproducible.
func (ru Rules) Validate(rec model.SalesRecord) Result {
	if !validID(rec.TransactionID, "T") ||
		!validID(rec.ProductID, "P") ||
		!validID(rec.CustomerID, "C") {
		return Result{Record: rec, Reason: ReasonMissingID}
	}
	if rec.Amount < 0 {
		return Result{Record: rec, Reason: ReasonNegativeAmount}
	}
	if rec.Amount == 0 && ru.RejectZeroAmount {
		return Result{Record: rec, Reason: ReasonZeroAmount}
	}
	if rec.Quantity < 1 {
		return Result{Record: rec, Reason: ReasonZeroQuantity}
	}
	if strings.TrimSpace(rec.Region) == "" {
		return Result{Record: rec, Reason: ReasonMissingRegion}
	}
	return Result{Record: rec, ZeroAmount: rec.Amount == 0}
}

func validID(id string, prefix string) bool {
	if id == "" || placeholders[strings.ToLower(id)] {
		return false
	}
	return strings.HasPrefix(id, prefix) && len(id) > len(prefix)
}

// Partition splits a batch of normalized records into admitted and rejected
// sets, preserving input order within each set.
func (ru Rules) Partition(recs []model.SalesRecord) (admitted []Result, rejected []Result) {
	for _, rec := range recs {
		res := ru.Validate(rec)
		if res.Admitted() {
			admitted = append(admitted, res)
		} else {
			rejected = append(rejected, res)
		}
	}
	return admitted, rejected
}
