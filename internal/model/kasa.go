package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShiftStatus is the last shift state observed on a kasa.
// Only "OPENED" is meaningful to the poller; every other server status
// (CLOSING, CLOSED, ...) collapses to StatusClosed.
type ShiftStatus string

const (
	StatusUnknown ShiftStatus = ""
	StatusOpened  ShiftStatus = "OPENED"
	StatusClosed  ShiftStatus = "CLOSED"
)

// Kasa is one registered cash register tracked for a single user.
//
// Persisted: ID, UserID, Index, credentials, Name, ShiftID, ShiftStart,
// ShiftClosed, Watermark. Everything below the "transient" marker is reset
// on reload.
type Kasa struct {
	ID         uuid.UUID
	UserID     string
	Index      int
	LicenseKey string
	PinCode    string
	Name       string

	// ShiftID is set iff the last observed status is OPENED and no close has
	// been reconciled since.
	ShiftID     string
	ShiftClosed bool
	// ShiftStart is zero when no shift is being tracked.
	ShiftStart time.Time
	Watermark  Watermark

	// transient
	Token          string
	LastStatus     ShiftStatus
	ReceiptCounter int
	StartedAt      time.Time
}

// DisplayName falls back to the ordinal when the register has no title.
func (k *Kasa) DisplayName() string {
	if k.Name != "" {
		return k.Name
	}
	return fmt.Sprintf("Каса №%d", k.Index)
}

// PreviousStatus is the status transitions are detected against. A kasa
// restored with a tracked open shift resumes as OPENED so a restart does not
// announce the same shift twice.
func (k *Kasa) PreviousStatus() ShiftStatus {
	if k.LastStatus != StatusUnknown {
		return k.LastStatus
	}
	if k.ShiftID != "" && !k.ShiftClosed {
		return StatusOpened
	}
	return StatusUnknown
}

// ResetShift clears all per-shift tracking after a close was reconciled.
func (k *Kasa) ResetShift() {
	k.ShiftID = ""
	k.ShiftClosed = true
	k.ShiftStart = time.Time{}
	k.Watermark = Watermark{}
	k.ReceiptCounter = 0
}

// Clone returns a deep copy safe to mutate outside the registry lock.
func (k Kasa) Clone() Kasa {
	k.Watermark = k.Watermark.Clone()
	return k
}
