package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceMarker_Unmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want ServiceMarker
		sale bool
	}{
		{`{"service_out": 0}`, "0", true},
		{`{"service_out": "0"}`, "0", true},
		{`{"service_out": " 0 "}`, "0", true},
		{`{"service_out": 0.0}`, "0", true},
		{`{"service_out": null}`, "0", true},
		{`{}`, "", true},
		{`{"service_out": 15000}`, "15000", false},
		{`{"service_out": "1"}`, "1", false},
	}
	for _, tc := range cases {
		var r Receipt
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &r), tc.raw)
		assert.Equal(t, tc.want, r.ServiceOut, tc.raw)
		assert.Equal(t, tc.sale, r.ServiceOut.IsSale(), tc.raw)
	}
}

func TestReceipt_EffectiveTime(t *testing.T) {
	created := "2024-03-01T10:00:00+00:00"
	modified := "2024-03-01T10:05:00.123456+02:00"

	r := Receipt{CreatedAt: created}
	got, ok := r.EffectiveTime()
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	r.ModifiedAt = modified
	got, ok = r.EffectiveTime()
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 3, 1, 8, 5, 0, 123456000, time.UTC)))

	_, ok = Receipt{CreatedAt: "yesterday"}.EffectiveTime()
	assert.False(t, ok)
	_, ok = Receipt{}.EffectiveTime()
	assert.False(t, ok)
}

func TestParseAPITime_NaiveIsUTC(t *testing.T) {
	got, ok := ParseAPITime("2024-03-01T10:00:00.5")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Nanosecond()))
}

func TestPayment_Category(t *testing.T) {
	assert.Equal(t, PaymentCash, Payment{Type: "cash"}.Category())
	assert.Equal(t, PaymentCard, Payment{Type: "CARD"}.Category())
	assert.Equal(t, PaymentCard, Payment{Type: "CASHLESS"}.Category())
	assert.Equal(t, PaymentOther, Payment{Type: "BONUS"}.Category())
}

func TestReceipt_IsServiceMovement(t *testing.T) {
	assert.True(t, Receipt{Type: "SERVICE_IN"}.IsServiceMovement())
	assert.True(t, Receipt{Type: "service_out"}.IsServiceMovement())
	assert.False(t, Receipt{Type: "SELL"}.IsServiceMovement())
}

func TestReportRef_DocumentID(t *testing.T) {
	assert.Equal(t, "r-9", ReportRef{ID: "rep", LastReceiptID: "r-9"}.DocumentID())
	assert.Equal(t, "rep", ReportRef{ID: "rep"}.DocumentID())
}

func TestWatermark_AdvanceAndCovers(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	var w Watermark
	assert.False(t, w.Covers(t0, "a"))

	w = w.Advance(t0, "b")
	assert.True(t, w.Covers(t0, "b"))
	assert.False(t, w.Covers(t0, "a"))
	assert.True(t, w.Covers(t0.Add(-time.Second), "zzz"))

	w = w.Advance(t0, "a")
	assert.Equal(t, "b", w.ID, "same-time advance keeps the larger id")
	assert.True(t, w.Covers(t0, "a"))

	w = w.Advance(t1, "c")
	assert.Equal(t, Watermark{Time: t1, ID: "c", SeenIDs: []string{"c"}}, w)

	back := w.Advance(t0, "z")
	assert.Equal(t, w, back, "older points never move the watermark")
}

func TestKasa_PreviousStatus(t *testing.T) {
	k := Kasa{}
	assert.Equal(t, StatusUnknown, k.PreviousStatus())

	k.ShiftID = "s1"
	assert.Equal(t, StatusOpened, k.PreviousStatus(), "restored open shift resumes as OPENED")

	k.ShiftClosed = true
	assert.Equal(t, StatusUnknown, k.PreviousStatus())

	k.LastStatus = StatusClosed
	assert.Equal(t, StatusClosed, k.PreviousStatus())
}

func TestKasa_CloneIsDeep(t *testing.T) {
	k := Kasa{Watermark: Watermark{Time: time.Now(), ID: "a", SeenIDs: []string{"a"}}}
	c := k.Clone()
	c.Watermark.SeenIDs[0] = "mutated"
	assert.Equal(t, "a", k.Watermark.SeenIDs[0])
}

func TestKasa_DisplayName(t *testing.T) {
	assert.Equal(t, "Кафе", (&Kasa{Name: "Кафе", Index: 2}).DisplayName())
	assert.Equal(t, "Каса №2", (&Kasa{Index: 2}).DisplayName())
}
