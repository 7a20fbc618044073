package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kasabot/internal/model"

	"github.com/google/uuid"
)

// KasaStore persists the full device collection, keyed by user id. SaveAll is
// an idempotent full overwrite; transient fields never reach the store.
type KasaStore interface {
	LoadAll(ctx context.Context) (map[string][]model.Kasa, error)
	SaveAll(ctx context.Context, users map[string][]model.Kasa) error
}

// timeLayout is the textual timestamp form stored for every time field.
const timeLayout = time.RFC3339Nano

// kasaSnapshot is the persisted shape of one device.
type kasaSnapshot struct {
	ID            string   `json:"id"`
	Index         int      `json:"index"`
	LicenseKey    string   `json:"license_key"`
	PinCode       string   `json:"pin_code"`
	Name          string   `json:"name"`
	ShiftID       *string  `json:"shift_id"`
	ShiftStart    *string  `json:"shift_start_datetime"`
	WatermarkTime *string  `json:"last_receipt_datetime"`
	WatermarkID   *string  `json:"last_receipt_id"`
	WatermarkSeen []string `json:"last_receipt_seen_ids,omitempty"`
	ShiftClosed   bool     `json:"shift_closed"`
}

func toSnapshot(k model.Kasa) kasaSnapshot {
	s := kasaSnapshot{
		ID:          k.ID.String(),
		Index:       k.Index,
		LicenseKey:  k.LicenseKey,
		PinCode:     k.PinCode,
		Name:        k.Name,
		ShiftID:     optString(k.ShiftID),
		ShiftStart:  optTime(k.ShiftStart),
		ShiftClosed: k.ShiftClosed,
	}
	if !k.Watermark.IsZero() {
		s.WatermarkTime = optTime(k.Watermark.Time)
		s.WatermarkID = optString(k.Watermark.ID)
		if len(k.Watermark.SeenIDs) > 0 {
			s.WatermarkSeen = append([]string(nil), k.Watermark.SeenIDs...)
		}
	}
	return s
}

func fromSnapshot(userID string, s kasaSnapshot) (model.Kasa, error) {
	k := model.Kasa{
		UserID:      userID,
		Index:       s.Index,
		LicenseKey:  s.LicenseKey,
		PinCode:     s.PinCode,
		Name:        s.Name,
		ShiftClosed: s.ShiftClosed,
	}

	// snapshots written before ids existed get a fresh one
	if s.ID == "" {
		k.ID = uuid.New()
	} else {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return model.Kasa{}, fmt.Errorf("kasa id %q: %w", s.ID, err)
		}
		k.ID = id
	}

	if s.ShiftID != nil {
		k.ShiftID = *s.ShiftID
	}
	start, err := parseOptTime(s.ShiftStart)
	if err != nil {
		return model.Kasa{}, fmt.Errorf("kasa %s shift start: %w", k.ID, err)
	}
	k.ShiftStart = start

	wmTime, err := parseOptTime(s.WatermarkTime)
	if err != nil {
		return model.Kasa{}, fmt.Errorf("kasa %s watermark: %w", k.ID, err)
	}
	if !wmTime.IsZero() {
		k.Watermark = model.Watermark{Time: wmTime}
		if s.WatermarkID != nil {
			k.Watermark.ID = *s.WatermarkID
		}
		k.Watermark.SeenIDs = append([]string(nil), s.WatermarkSeen...)
		if len(k.Watermark.SeenIDs) == 0 && k.Watermark.ID != "" {
			k.Watermark.SeenIDs = []string{k.Watermark.ID}
		}
	}
	return k, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func parseOptTime(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	t, ok := model.ParseAPITime(*s)
	if !ok {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", *s)
	}
	return t.UTC(), nil
}

// sortedUsers gives deterministic iteration for stores that care about order.
func sortedUsers(users map[string][]model.Kasa) []string {
	keys := make([]string, 0, len(users))
	for k := range users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
