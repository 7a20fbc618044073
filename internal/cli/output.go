package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"kasabot/internal/model"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// kasaView is the printable form of one device. Credentials are never shown.
type kasaView struct {
	UserID      string `json:"user_id"            yaml:"user_id"`
	Index       int    `json:"index"              yaml:"index"`
	ID          string `json:"id"                 yaml:"id"`
	Name        string `json:"name"               yaml:"name"`
	License     string `json:"license"            yaml:"license"`
	ShiftID     string `json:"shift_id,omitempty" yaml:"shift_id,omitempty"`
	ShiftStart  string `json:"shift_start,omitempty" yaml:"shift_start,omitempty"`
	Watermark   string `json:"watermark,omitempty"    yaml:"watermark,omitempty"`
	WatermarkID string `json:"watermark_id,omitempty" yaml:"watermark_id,omitempty"`
}

func viewOf(k model.Kasa) kasaView {
	v := kasaView{
		UserID:  k.UserID,
		Index:   k.Index,
		ID:      k.ID.String(),
		Name:    k.DisplayName(),
		License: maskLicense(k.LicenseKey),
	}
	if k.ShiftID != "" && !k.ShiftClosed {
		v.ShiftID = k.ShiftID
	}
	if !k.ShiftStart.IsZero() {
		v.ShiftStart = k.ShiftStart.UTC().Format(time.RFC3339)
	}
	if !k.Watermark.IsZero() {
		v.Watermark = k.Watermark.Time.UTC().Format(time.RFC3339Nano)
		v.WatermarkID = k.Watermark.ID
	}
	return v
}

// maskLicense keeps the last four characters.
func maskLicense(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func render(w io.Writer, format string, views []kasaView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(views)
	default:
		return renderTable(w, views)
	}
}

func renderTable(w io.Writer, views []kasaView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint("no kasas"))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\t#\tID\tNAME\tLICENSE\tSHIFT\tWATERMARK")
	for _, v := range views {
		shift := color.New(color.FgHiBlack).Sprint("closed")
		if v.ShiftID != "" {
			shift = color.New(color.FgHiGreen).Sprint("open " + v.ShiftID)
		}
		wm := color.New(color.FgYellow).Sprint("absent")
		if v.Watermark != "" {
			wm = v.Watermark
			if v.WatermarkID != "" {
				wm += " " + color.New(color.FgCyan).Sprint(v.WatermarkID)
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", v.UserID, v.Index, v.ID, v.Name, v.License, shift, wm)
	}
	return tw.Flush()
}
