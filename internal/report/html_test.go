package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ashlineldridge/metron/internal/report"
)

func TestGenerateHTMLIncludesCoreSections(t *testing.T) {
	res := report.Result{Report: buildReport(t), RunTag: "smoke"}
	var buf bytes.Buffer
	if err := report.GenerateHTML(&buf, res); err != nil {
		t.Fatalf("GenerateHTML: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"<html>", "Metron Run Report", "smoke", "Corrected Latency", "Actual Latency"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected HTML output to contain %q", want)
		}
	}
}
