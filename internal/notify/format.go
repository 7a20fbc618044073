package notify

import (
	"fmt"
	"strings"
	"time"

	"kasabot/internal/model"

	// Europe/Kyiv must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

const receiptTimeLayout = "02.01.2006 15:04:05"

// ShiftOpened announces a newly opened shift.
func ShiftOpened(kasaName string) string {
	return fmt.Sprintf("Зміна відкрита на касі '%s'.", kasaName)
}

// ShiftClosed announces a reconciled shift close.
func ShiftClosed(kasaName string) string {
	return fmt.Sprintf("На касі '%s' зміна закрита.", kasaName)
}

// ReceiptCard is the message sent for each new sale receipt. number is the
// per-shift sequence; zero omits the line.
func ReceiptCard(kasaName string, number int, r model.Receipt, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Каса: %s\n", kasaName)
	if number > 0 {
		fmt.Fprintf(&b, "Чек #%d\n", number)
	}
	if r.Serial > 0 {
		fmt.Fprintf(&b, "Serial: %d\n", r.Serial)
	} else {
		b.WriteString("Serial: N/A\n")
	}
	fmt.Fprintf(&b, "Сума: %s грн\n", kopecks(r.TotalSum))
	fmt.Fprintf(&b, "Оплата: %s\n", paymentLabels(r.Payments))
	fmt.Fprintf(&b, "Час: %s", receiptTime(r.CreatedAt, loc))
	return b.String()
}

// CaptionLimit is the longest document caption Telegram accepts, in characters.
const CaptionLimit = 1024

// ReceiptCaption captions a receipt document whose card is sent separately.
func ReceiptCaption(kasaName string, number int) string {
	if number > 0 {
		return fmt.Sprintf("Чек #%d, каса '%s'", number, kasaName)
	}
	return fmt.Sprintf("Чек, каса '%s'", kasaName)
}

// ReceiptFilename names a receipt document.
func ReceiptFilename(r model.Receipt) string {
	if r.Serial > 0 {
		return fmt.Sprintf("receipt_%d.pdf", r.Serial)
	}
	return fmt.Sprintf("receipt_%s.pdf", r.ID)
}

// ShiftSummary is the closing report text, or the "no receipts" notice.
func ShiftSummary(kasaName string, s model.ShiftSummary) string {
	if s.IsEmpty() {
		return fmt.Sprintf("На касі '%s' немає чеків для звіту.", kasaName)
	}
	return fmt.Sprintf("Звіт за зміною на касі '%s':\n"+
		"Кількість чеків: %d\n"+
		"Сума продаж (готівка): %s грн\n"+
		"Сума продаж (картки): %s грн\n"+
		"Загальна сума продаж: %s грн",
		kasaName, s.Count, s.Cash.StringFixed(2), s.Card.StringFixed(2), s.Overall.StringFixed(2))
}

// SummaryFilename names the rendered summary PDF.
func SummaryFilename(shiftSerial int64) string {
	if shiftSerial > 0 {
		return fmt.Sprintf("shift_%d_summary.pdf", shiftSerial)
	}
	return "shift_summary.pdf"
}

// ReportCaption captions an X (opening) or Z (closing) report document.
func ReportCaption(closing bool, shiftID string) string {
	kind := "X"
	if closing {
		kind = "Z"
	}
	return fmt.Sprintf("%s звіт для зміни (%s)", kind, shiftID)
}

// ReportFilename names an X or Z report document.
func ReportFilename(closing bool, shiftID string) string {
	kind := "x"
	if closing {
		kind = "z"
	}
	return fmt.Sprintf("%s_report_%s.pdf", kind, shiftID)
}

// StatusLine describes the live shift state. A nil shift means no shift is
// open.
func StatusLine(kasaName string, shift *model.Shift) string {
	switch {
	case shift == nil:
		return fmt.Sprintf("На касі '%s' зміна закрита.", kasaName)
	case shift.IsOpened():
		return fmt.Sprintf("На касі '%s' відкрита зміна №%d.", kasaName, shift.Serial)
	default:
		return fmt.Sprintf("На касі '%s' зміна має статус '%s'.", kasaName, shift.Status)
	}
}

// StatusUnavailable is shown when the shift detail could not be fetched.
func StatusUnavailable(kasaName string) string {
	return fmt.Sprintf("Не вдалося отримати інформацію про зміну на касі '%s'.", kasaName)
}

// KasaAdded confirms a registration and appends the live status.
func KasaAdded(kasaName, status string) string {
	return fmt.Sprintf("Каса '%s' додана.\n%s", kasaName, status)
}

func kopecks(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func paymentLabels(payments []model.Payment) string {
	var labels []string
	for _, p := range payments {
		if p.Category() == model.PaymentOther {
			continue
		}
		label := p.Label
		if label == "" {
			label = strings.ToUpper(p.Type)
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return "N/A"
	}
	return strings.Join(labels, ", ")
}

func receiptTime(raw string, loc *time.Location) string {
	if raw == "" {
		return "N/A"
	}
	t, ok := model.ParseAPITime(raw)
	if !ok {
		return raw
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(receiptTimeLayout)
}
