package service

import (
	"sort"
	"time"

	"kasabot/internal/model"
)

// candidate is a receipt that can be ordered and de-duplicated.
type candidate struct {
	receipt model.Receipt
	at      time.Time
}

// Delta computes which receipts of a raw search batch are new relative to
// prev, in delivery order, and the watermark after delivering all of them.
//
// Receipts without an id or a parseable time are dropped, as are non-sale
// cash movements (service marker other than "0"). When prev is absent the
// batch only seeds the watermark from its latest qualifying receipt and
// nothing is returned for delivery.
//
// Delta is pure: it does not modify prev or raw.
func Delta(prev model.Watermark, raw []model.Receipt) ([]model.Receipt, model.Watermark) {
	candidates := orderedCandidates(raw)

	if prev.IsZero() {
		next := model.Watermark{}
		for _, c := range candidates {
			next = next.Advance(c.at, c.receipt.ID)
		}
		return nil, next
	}

	next := prev.Clone()
	var fresh []model.Receipt
	for _, c := range candidates {
		if prev.Covers(c.at, c.receipt.ID) {
			continue
		}
		fresh = append(fresh, c.receipt)
		next = next.Advance(c.at, c.receipt.ID)
	}
	return fresh, next
}

// orderedCandidates filters raw down to orderable sale receipts, removes
// duplicate ids and sorts ascending by (effective time, id).
func orderedCandidates(raw []model.Receipt) []candidate {
	seen := make(map[string]bool, len(raw))
	out := make([]candidate, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		at, ok := r.EffectiveTime()
		if !ok {
			continue
		}
		if !r.ServiceOut.IsSale() {
			continue
		}
		seen[r.ID] = true
		out = append(out, candidate{receipt: r, at: at})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].at.Equal(out[j].at) {
			return out[i].at.Before(out[j].at)
		}
		return out[i].receipt.ID < out[j].receipt.ID
	})
	return out
}
