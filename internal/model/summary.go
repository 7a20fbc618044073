package model

import "github.com/shopspring/decimal"

// ShiftSummary is the per-shift sales total in hryvnias.
type ShiftSummary struct {
	Count   int
	Cash    decimal.Decimal
	Card    decimal.Decimal
	Overall decimal.Decimal
}

// IsEmpty reports a shift without sale receipts.
func (s ShiftSummary) IsEmpty() bool {
	return s.Count == 0
}
