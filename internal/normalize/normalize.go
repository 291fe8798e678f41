// Package normalize parses raw field sets into canonical sales records.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"salespipe/internal/model"
)

// Kind classifies a normalization failure.
type Kind string

const (
	KindMissingField Kind = "missing_field"
	KindBadDate      Kind = "bad_date"
	KindBadAmount    Kind = "bad_amount"
	KindBadQuantity  Kind = "bad_quantity"
)

// Error is fatal to the single record it describes. The record is dropped
// before validation and counted in the malformed bucket.
type Error struct {
	Kind  Kind
	Field string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalize: %s (%s)", e.Kind, e.Field)
	}
	return fmt.Sprintf("normalize: %s", e.Kind)
}

// currencyCleaner strips currency symbols and thousands separators from
// amount fields before decimal parsing.
var currencyCleaner = strings.NewReplacer("₹", "", "$", "", "€", "", "£", "", ",", "", " ", "")

// Normalize converts one raw row into a canonical SalesRecord. It is a pure
// function of its input: no side effects, no shared state. Range checks
// (negative amount, zero quantity, empty region) are validation's concern
// and pass through here untouched.
func Normalize(raw model.RawRecord) (model.SalesRecord, error) {
	for _, f := range []string{
		model.FieldTransactionID,
		model.FieldDate,
		model.FieldProductID,
		model.FieldCustomerID,
		model.FieldAmount,
		model.FieldQuantity,
	} {
		if strings.TrimSpace(raw[f]) == "" {
			return model.SalesRecord{}, &Error{Kind: KindMissingField, Field: f}
		}
	}

	date, err := time.Parse(model.DateLayout, strings.TrimSpace(raw[model.FieldDate]))
	if err != nil {
		return model.SalesRecord{}, &Error{Kind: KindBadDate, Field: model.FieldDate}
	}

	amount, err := strconv.ParseFloat(currencyCleaner.Replace(raw[model.FieldAmount]), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return model.SalesRecord{}, &Error{Kind: KindBadAmount, Field: model.FieldAmount}
	}

	qtyStr := currencyCleaner.Replace(raw[model.FieldQuantity])
	qtyF, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil || qtyF != math.Trunc(qtyF) {
		return model.SalesRecord{}, &Error{Kind: KindBadQuantity, Field: model.FieldQuantity}
	}

	return model.SalesRecord{
		TransactionID: strings.TrimSpace(raw[model.FieldTransactionID]),
		ProductID:     strings.TrimSpace(raw[model.FieldProductID]),
		CustomerID:    strings.TrimSpace(raw[model.FieldCustomerID]),
		Region:        strings.TrimSpace(raw[model.FieldRegion]),
		Amount:        amount,
		Date:          date,
		Quantity:      int64(qtyF),
	}, nil
}
