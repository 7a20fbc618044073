package service

import (
	"kasabot/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summarize totals a shift's receipts. Amounts arrive in kopecks.
//
// Service movements are skipped. Each receipt's total is split across its
// payment entries proportionally to their values; a breakdown that sums to
// zero puts the whole total on the first entry's category. Payment types
// other than cash and card only count towards Overall.
func Summarize(receipts []model.Receipt) model.ShiftSummary {
	cash := decimal.Zero
	card := decimal.Zero
	overall := decimal.Zero
	count := 0

	for _, r := range receipts {
		if r.IsServiceMovement() {
			continue
		}
		count++
		total := decimal.NewFromInt(r.TotalSum)
		overall = overall.Add(total)

		var paid int64
		for _, p := range r.Payments {
			paid += p.Value
		}

		if paid == 0 {
			if len(r.Payments) > 0 {
				switch r.Payments[0].Category() {
				case model.PaymentCash:
					cash = cash.Add(total)
				case model.PaymentCard:
					card = card.Add(total)
				}
			}
			continue
		}

		sum := decimal.NewFromInt(paid)
		for _, p := range r.Payments {
			share := decimal.NewFromInt(p.Value).Mul(total).Div(sum)
			switch p.Category() {
			case model.PaymentCash:
				cash = cash.Add(share)
			case model.PaymentCard:
				card = card.Add(share)
			}
		}
	}

	return model.ShiftSummary{
		Count:   count,
		Cash:    cash.Div(hundred),
		Card:    card.Div(hundred),
		Overall: overall.Div(hundred),
	}
}
