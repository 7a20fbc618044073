package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Receipt types that move cash in or out of the drawer without a sale.
const (
	ReceiptTypeServiceIn  = "SERVICE_IN"
	ReceiptTypeServiceOut = "SERVICE_OUT"
)

// PaymentCategory groups payment types for shift totals.
type PaymentCategory int

const (
	PaymentOther PaymentCategory = iota
	PaymentCash
	PaymentCard
)

// Payment is one entry of a receipt's payment breakdown. Value is in kopecks.
type Payment struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
	Label string `json:"label"`
}

// Category maps the upstream payment type to cash or card.
func (p Payment) Category() PaymentCategory {
	switch strings.ToUpper(p.Type) {
	case "CASH":
		return PaymentCash
	case "CARD", "CASHLESS":
		return PaymentCard
	default:
		return PaymentOther
	}
}

// ServiceMarker is the receipt's service-direction field. The API sends it as
// a number, a string or null; "0" means a sale.
type ServiceMarker string

// UnmarshalJSON accepts numbers, strings and null.
func (m *ServiceMarker) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = "0"
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = normalizeMarker(s)
		return nil
	}
	*m = normalizeMarker(string(data))
	return nil
}

func normalizeMarker(s string) ServiceMarker {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
		return "0"
	}
	return ServiceMarker(s)
}

// IsSale reports whether the marker denotes an ordinary sale.
func (m ServiceMarker) IsSale() bool {
	return m == "" || m == "0"
}

// Receipt is a fiscal receipt as returned by search and detail calls.
// Times are kept as the raw strings the API sent; see EffectiveTime.
type Receipt struct {
	ID         string        `json:"id"`
	Serial     int64         `json:"serial"`
	Type       string        `json:"type"`
	TotalSum   int64         `json:"total_sum"`
	CreatedAt  string        `json:"created_at"`
	ModifiedAt string        `json:"modified_at"`
	ServiceOut ServiceMarker `json:"service_out"`
	Payments   []Payment     `json:"payments"`
}

// IsServiceMovement reports a drawer deposit or withdrawal by type tag.
func (r Receipt) IsServiceMovement() bool {
	switch strings.ToUpper(r.Type) {
	case ReceiptTypeServiceIn, ReceiptTypeServiceOut:
		return true
	}
	return false
}

// EffectiveTime is the modification time if present, else the creation time.
// ok is false when neither parses.
func (r Receipt) EffectiveTime() (time.Time, bool) {
	raw := r.ModifiedAt
	if raw == "" {
		raw = r.CreatedAt
	}
	return ParseAPITime(raw)
}

// Shift is the detail of one shift.
type Shift struct {
	ID       string `json:"id"`
	Serial   int64  `json:"serial"`
	Status   string `json:"status"`
	OpenedAt string `json:"opened_at"`
	ClosedAt string `json:"closed_at"`
}

// IsOpened reports an OPENED server status.
func (s *Shift) IsOpened() bool {
	return s != nil && strings.EqualFold(s.Status, string(StatusOpened))
}

// ReportRef is one X or Z report listing entry.
type ReportRef struct {
	ID            string `json:"id"`
	Serial        int64  `json:"serial"`
	IsZReport     bool   `json:"is_z_report"`
	LastReceiptID string `json:"last_receipt_id"`
}

// DocumentID is the receipt id whose document renders this report.
func (r ReportRef) DocumentID() string {
	if r.LastReceiptID != "" {
		return r.LastReceiptID
	}
	return r.ID
}

var apiTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseAPITime parses the ISO-8601 forms the fiscal API emits. Values
// without an offset are taken as UTC.
func ParseAPITime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
