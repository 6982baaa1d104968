package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gwprov/internal/portdata"
)

const ruleWidth = 120

var statusLabels = map[portdata.Status]string{
	portdata.StatusActive:     "+ Active",
	portdata.StatusWeakSignal: "~ Weak Sig",
	portdata.StatusError:      "! Error",
	portdata.StatusInactive:   "- Inactive",
}

// Format renders the fixed-width text report, grouped by gateway.
func Format(r Report) string {
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)
	dash := strings.Repeat("-", ruleWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "GATEWAY INVENTORY REPORT")
	fmt.Fprintln(&b, "Generated: "+r.Generated.UTC().Format(time.RFC3339))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	if errs := r.Errors(); len(errs) > 0 {
		fmt.Fprintln(&b, "ERRORS ENCOUNTERED:")
		for _, e := range errs {
			fmt.Fprintf(&b, "  x %s\n", e)
		}
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, rule)
		fmt.Fprintln(&b)
	}

	for _, g := range r.Gateways {
		if g.Dataset == nil {
			continue
		}
		fmt.Fprintf(&b, "\nGATEWAY %s\n", g.Gateway)
		fmt.Fprintln(&b, dash)
		fmt.Fprintf(&b, "%-12s %-15s %-12s %-15s %-22s %-18s %s\n", "PORT", "STATUS", "CARRIER", "MDN", "ICCID", "IMEI", "NOTES")
		fmt.Fprintln(&b, dash)
		for _, rec := range g.Dataset.Records() {
			notes := ""
			if len(rec.Missing) > 0 {
				notes = "MISSING: " + strings.Join(rec.Missing, ",")
			}
			line := fmt.Sprintf("%-12s %-15s %-12s %-15s %-22s %-18s %s",
				rec.Label(), statusLabels[rec.Status], rec.Carrier,
				orNA(rec.MDN), orNA(rec.ICCID), orNA(rec.IMEI), notes)
			fmt.Fprintln(&b, strings.TrimRight(line, " "))
		}
	}
	return b.String()
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

// Paths are the files written by Save.
type Paths struct {
	Text   string
	JSON   string
	Errors string // empty when no gateway failed
}

type jsonReport struct {
	Data      []portdata.Record `json:"data"`
	Errors    []string          `json:"errors"`
	Timestamp string            `json:"timestamp"`
}

// Save writes GW_Inventory_<date>.txt and .json under dir, plus
// GW_Inventory_Errors_<date>.log when any gateway failed.
func Save(dir string, r Report) (Paths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Paths{}, fmt.Errorf("failed to create report directory: %w", err)
	}
	date := r.Generated.UTC().Format("2006-01-02")
	p := Paths{
		Text: filepath.Join(dir, "GW_Inventory_"+date+".txt"),
		JSON: filepath.Join(dir, "GW_Inventory_"+date+".json"),
	}

	if err := os.WriteFile(p.Text, []byte(Format(r)), 0644); err != nil {
		return p, fmt.Errorf("failed to write text report: %w", err)
	}

	errs := r.Errors()
	payload := jsonReport{
		Data:      r.Records(),
		Errors:    errs,
		Timestamp: r.Generated.UTC().Format(time.RFC3339Nano),
	}
	if payload.Data == nil {
		payload.Data = []portdata.Record{}
	}
	if payload.Errors == nil {
		payload.Errors = []string{}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return p, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(p.JSON, data, 0644); err != nil {
		return p, fmt.Errorf("failed to write json report: %w", err)
	}

	if len(errs) > 0 {
		p.Errors = filepath.Join(dir, "GW_Inventory_Errors_"+date+".log")
		if err := os.WriteFile(p.Errors, []byte(strings.Join(errs, "\n")+"\n"), 0644); err != nil {
			return p, fmt.Errorf("failed to write error log: %w", err)
		}
	}
	return p, nil
}
