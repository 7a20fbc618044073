package model

import (
	"slices"
	"time"
)

// Watermark is the cursor of the last receipt already delivered.
//
// Time and ID identify the newest delivered receipt. SeenIDs lists every id
// delivered with an effective time equal to Time, so receipts sharing a
// timestamp are never delivered twice. A zero Time means "absent".
type Watermark struct {
	Time    time.Time
	ID      string
	SeenIDs []string
}

// IsZero reports an absent watermark.
func (w Watermark) IsZero() bool {
	return w.Time.IsZero()
}

// Covers reports whether a receipt at (t, id) was already delivered.
func (w Watermark) Covers(t time.Time, id string) bool {
	if w.IsZero() {
		return false
	}
	if t.Before(w.Time) {
		return true
	}
	if t.After(w.Time) {
		return false
	}
	return id == w.ID || slices.Contains(w.SeenIDs, id)
}

// Advance moves the watermark to (t, id). It never moves backwards: a point
// at the current time only adds to SeenIDs, and ID becomes the larger id.
func (w Watermark) Advance(t time.Time, id string) Watermark {
	switch {
	case w.IsZero() || t.After(w.Time):
		return Watermark{Time: t, ID: id, SeenIDs: []string{id}}
	case t.Equal(w.Time):
		next := w.Clone()
		if !slices.Contains(next.SeenIDs, id) {
			next.SeenIDs = append(next.SeenIDs, id)
		}
		if w.ID != "" && !slices.Contains(next.SeenIDs, w.ID) {
			next.SeenIDs = append(next.SeenIDs, w.ID)
		}
		if id > next.ID {
			next.ID = id
		}
		return next
	default:
		return w
	}
}

// Less orders watermarks by (time, id).
func (w Watermark) Less(o Watermark) bool {
	if !w.Time.Equal(o.Time) {
		return w.Time.Before(o.Time)
	}
	return w.ID < o.ID
}

// Clone copies SeenIDs.
func (w Watermark) Clone() Watermark {
	w.SeenIDs = slices.Clone(w.SeenIDs)
	return w
}
