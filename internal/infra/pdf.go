package infra

// pdf.go: shift summary rendered as a thermal-receipt sized PDF with go-pdf/fpdf.
//   - Kasa name and shift number header
//   - Opened / closed timestamps
//   - Receipt count
//   - Cash / card split and bold total
//
// fpdf core fonts are Latin-1 only, so Cyrillic text is transliterated.

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// SummaryDocument is everything printed on the shift summary PDF.
type SummaryDocument struct {
	KasaName    string
	ShiftSerial int64
	OpenedAt    time.Time
	ClosedAt    time.Time
	Count       int
	Cash        decimal.Decimal
	Card        decimal.Decimal
	Overall     decimal.Decimal
}

// RenderSummaryPDF renders the summary and returns the PDF bytes.
func RenderSummaryPDF(doc SummaryDocument) ([]byte, error) {
	// 80mm roll width, fixed height
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: 110},
	})
	pdf.SetMargins(5, 5, 5)
	pdf.SetCreator("kasabot", false)
	pdf.SetTitle("Shift summary", false)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 10
	labelW := contentW * 0.6
	valueW := contentW - labelW

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, transliterate(doc.KasaName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	title := "Pidsumok zminy"
	if doc.ShiftSerial > 0 {
		title = fmt.Sprintf("Pidsumok zminy No %d", doc.ShiftSerial)
	}
	pdf.CellFormat(contentW, 5, title, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	// ── Shift window ──────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 7)
	if !doc.OpenedAt.IsZero() {
		row(pdf, labelW, valueW, 4, "Vidkryto:", doc.OpenedAt.Format("02.01.2006 15:04"))
	}
	if !doc.ClosedAt.IsZero() {
		row(pdf, labelW, valueW, 4, "Zakryto:", doc.ClosedAt.Format("02.01.2006 15:04"))
	}
	pdf.Ln(1)
	pdf.Line(5, pdf.GetY(), pageW-5, pdf.GetY())
	pdf.Ln(2)

	// ── Totals ────────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 8)
	row(pdf, labelW, valueW, 5, "Chekiv:", fmt.Sprintf("%d", doc.Count))
	row(pdf, labelW, valueW, 5, "Gotivka:", doc.Cash.StringFixed(2)+" UAH")
	row(pdf, labelW, valueW, 5, "Kartka:", doc.Card.StringFixed(2)+" UAH")

	pdf.Ln(1)
	pdf.SetFont("Helvetica", "B", 10)
	row(pdf, labelW, valueW, 6, "RAZOM:", doc.Overall.StringFixed(2)+" UAH")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render summary: %w", err)
	}
	return buf.Bytes(), nil
}

func row(pdf *fpdf.Fpdf, labelW, valueW, h float64, label, value string) {
	pdf.CellFormat(labelW, h, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(valueW, h, value, "", 1, "R", false, 0, "")
}

var ukrainianLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "h", 'ґ': "g", 'д': "d", 'е': "e", 'є': "ie",
	'ж': "zh", 'з': "z", 'и': "y", 'і': "i", 'ї': "i", 'й': "i", 'к': "k", 'л': "l",
	'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu",
	'я': "ia", 'ы': "y", 'э': "e", 'ё': "io", 'ъ': "", '№': "No", '\'': "'",
}

// transliterate maps Cyrillic to Latin and drops anything else outside ASCII.
func transliterate(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		lower := []rune(strings.ToLower(string(r)))[0]
		lat, ok := ukrainianLatin[lower]
		if !ok {
			continue
		}
		if lower != r && lat != "" {
			lat = strings.ToUpper(lat[:1]) + lat[1:]
		}
		b.WriteString(lat)
	}
	return b.String()
}
