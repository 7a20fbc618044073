package infra

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSummaryPDF(t *testing.T) {
	doc := SummaryDocument{
		KasaName:    "Кав'ярня №1",
		ShiftSerial: 17,
		OpenedAt:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		ClosedAt:    time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
		Count:       3,
		Cash:        decimal.RequireFromString("10"),
		Card:        decimal.RequireFromString("5.5"),
		Overall:     decimal.RequireFromString("15.5"),
	}

	out, err := RenderSummaryPDF(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, pdfMagic))
}

func TestTransliterate(t *testing.T) {
	assert.Equal(t, "Kav'iarnia No1", transliterate("Кав'ярня №1"))
	assert.Equal(t, "Shop 7", transliterate("Shop 7"))
	assert.Equal(t, "Zhytomyr", transliterate("Житомир"))
	assert.Equal(t, "", transliterate("日本"))
}
