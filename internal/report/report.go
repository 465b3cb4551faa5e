// Package report renders a finished run's telemetry.SegmentReport (and, in
// SLO-search mode, a controller.Result) as text, JSON, or HTML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ashlineldridge/metron/internal/controller"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

// Quantiles are the percentiles printed in the text and JSON reports,
// independent of the SLO search's own quantile (if any).
var Quantiles = []float64{50, 90, 99, 99.9}

// Result bundles everything a run produces that the report needs to render.
type Result struct {
	Report              telemetry.SegmentReport
	SLOResult           controller.Result
	HadSLO              bool
	RunTag              string
	NoLatencyCorrection bool
}

// WriteText prints a human-readable summary of a run's outcome.
func WriteText(w io.Writer, res Result) {
	r := res.Report
	fmt.Fprintln(w, "\n--- Metron Run Results ---")
	if res.RunTag != "" {
		fmt.Fprintf(w, "Run Tag:           %s\n", res.RunTag)
	}
	fmt.Fprintf(w, "Window:            %s -> %s\n", r.WindowStart.Format("15:04:05.000"), r.WindowEnd.Format("15:04:05.000"))
	fmt.Fprintf(w, "Sent:              %d\n", r.Sent)
	fmt.Fprintf(w, "Successes:         %d\n", r.Successes)
	fmt.Fprintf(w, "Client Errors:     %d\n", r.ClientErrors())
	fmt.Fprintf(w, "Skipped Instants:  %d\n", r.SkippedInstants)
	fmt.Fprintf(w, "Telemetry Drops:   %d\n", r.TelemetryDrops)
	fmt.Fprintf(w, "Success Rate:      %.3f%%\n", r.SuccessRate*100)
	fmt.Fprintf(w, "Achieved RPS:      %.2f\n", r.AchievedRPS)

	if res.NoLatencyCorrection {
		fmt.Fprintln(w, "\nLatency (sent to done, coordinated-omission correction disabled):")
	} else {
		fmt.Fprintln(w, "\nLatency (corrected, scheduling-aware) [default]:")
	}
	for _, q := range Quantiles {
		fmt.Fprintf(w, "  p%-5g           %s\n", q, r.DefaultQuantile(q, res.NoLatencyCorrection))
	}

	fmt.Fprintln(w, "\nCorrected Latency (scheduling-aware):")
	for _, q := range Quantiles {
		fmt.Fprintf(w, "  p%-5g           %s\n", q, r.CorrectedQuantile(q))
	}
	fmt.Fprintln(w, "\nActual Latency (sent to done):")
	for _, q := range Quantiles {
		fmt.Fprintf(w, "  p%-5g           %s\n", q, r.ActualQuantile(q))
	}

	if len(r.NonSuccessByClass) > 0 {
		fmt.Fprintln(w, "\nNon-2xx by Class:")
		for _, row := range sortedCounts(r.NonSuccessByClass) {
			fmt.Fprintf(w, "  %-8s %d\n", row.key, row.count)
		}
	}
	if len(r.ClientErrorsByKind) > 0 {
		fmt.Fprintln(w, "\nClient Errors by Kind:")
		byKind := make(map[string]int64, len(r.ClientErrorsByKind))
		for k, n := range r.ClientErrorsByKind {
			byKind[string(k)] = n
		}
		for _, row := range sortedCounts(byKind) {
			fmt.Fprintf(w, "  %-8s %d\n", row.key, row.count)
		}
	}

	if res.HadSLO {
		fmt.Fprintln(w, "\nSLO Search:")
		if res.SLOResult.Found {
			fmt.Fprintf(w, "  Max Compliant Rate: %.2f rps\n", res.SLOResult.MaxCompliantRate)
		} else {
			fmt.Fprintln(w, "  No compliant rate found at the configured minimum")
		}
		fmt.Fprintf(w, "  Rounds:             %d\n", res.SLOResult.Rounds)
	}
}

type countRow struct {
	key   string
	count int64
}

// sortedCounts orders by descending count, then key, for stable output.
func sortedCounts(m map[string]int64) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, countRow{key: k, count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count == rows[j].count {
			return rows[i].key < rows[j].key
		}
		return rows[i].count > rows[j].count
	})
	return rows
}

// JSON is the wire shape written by WriteJSON.
type JSON struct {
	RunTag             string           `json:"run_tag,omitempty"`
	WindowStart        string           `json:"window_start"`
	WindowEnd          string           `json:"window_end"`
	Sent               int64            `json:"sent"`
	Successes          int64            `json:"successes"`
	ClientErrors       int64            `json:"client_errors"`
	SkippedInstants    uint64           `json:"skipped_instants"`
	TelemetryDrops     uint64           `json:"telemetry_drops"`
	SuccessRate        float64          `json:"success_rate"`
	AchievedRPS        float64          `json:"achieved_rps"`
	LatencyCorrected   bool             `json:"latency_corrected"`
	LatencyUs          map[string]int64 `json:"latency_us"`
	CorrectedLatencyUs map[string]int64 `json:"corrected_latency_us"`
	ActualLatencyUs    map[string]int64 `json:"actual_latency_us"`
	NonSuccessByClass  map[string]int64 `json:"non_success_by_class,omitempty"`
	ClientErrorsByKind map[string]int64 `json:"client_errors_by_kind,omitempty"`
	SLO                *SLOJSON         `json:"slo,omitempty"`
}

// SLOJSON is the SLO search section of JSON, present only in SLO-search mode.
type SLOJSON struct {
	Found            bool    `json:"found"`
	MaxCompliantRate float64 `json:"max_compliant_rate,omitempty"`
	Rounds           int     `json:"rounds"`
}

// WriteJSON writes the indented JSON report.
func WriteJSON(w io.Writer, res Result) error {
	r := res.Report
	doc := JSON{
		RunTag:          res.RunTag,
		WindowStart:     r.WindowStart.Format("2006-01-02T15:04:05.000Z07:00"),
		WindowEnd:       r.WindowEnd.Format("2006-01-02T15:04:05.000Z07:00"),
		Sent:            r.Sent,
		Successes:       r.Successes,
		ClientErrors:    r.ClientErrors(),
		SkippedInstants: r.SkippedInstants,
		TelemetryDrops:  r.TelemetryDrops,
		SuccessRate:      r.SuccessRate,
		AchievedRPS:      r.AchievedRPS,
		LatencyCorrected: !res.NoLatencyCorrection,
		LatencyUs: map[string]int64{
			"p50":  r.DefaultQuantile(50, res.NoLatencyCorrection).Microseconds(),
			"p90":  r.DefaultQuantile(90, res.NoLatencyCorrection).Microseconds(),
			"p99":  r.DefaultQuantile(99, res.NoLatencyCorrection).Microseconds(),
			"p999": r.DefaultQuantile(99.9, res.NoLatencyCorrection).Microseconds(),
		},
		CorrectedLatencyUs: map[string]int64{
			"p50": r.CorrectedQuantile(50).Microseconds(),
			"p90": r.CorrectedQuantile(90).Microseconds(),
			"p99": r.CorrectedQuantile(99).Microseconds(),
			"p999": r.CorrectedQuantile(99.9).Microseconds(),
		},
		ActualLatencyUs: map[string]int64{
			"p50": r.ActualQuantile(50).Microseconds(),
			"p90": r.ActualQuantile(90).Microseconds(),
			"p99": r.ActualQuantile(99).Microseconds(),
			"p999": r.ActualQuantile(99.9).Microseconds(),
		},
		NonSuccessByClass: r.NonSuccessByClass,
	}
	if len(r.ClientErrorsByKind) > 0 {
		doc.ClientErrorsByKind = make(map[string]int64, len(r.ClientErrorsByKind))
		for k, n := range r.ClientErrorsByKind {
			doc.ClientErrorsByKind[string(k)] = n
		}
	}
	if res.HadSLO {
		doc.SLO = &SLOJSON{
			Found:            res.SLOResult.Found,
			MaxCompliantRate: res.SLOResult.MaxCompliantRate,
			Rounds:           res.SLOResult.Rounds,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
