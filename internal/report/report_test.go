package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/controller"
	"github.com/ashlineldridge/metron/internal/report"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

func buildReport(t *testing.T) telemetry.SegmentReport {
	t.Helper()
	sink := telemetry.NewSink(100, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	now := time.Now()
	sink.Publish(telemetry.Sample{Seq: 0, ScheduledAt: now, SentAt: now, DoneAt: now.Add(10 * time.Millisecond), Status: telemetry.HTTPStatus(200)}, time.Second)
	sink.Publish(telemetry.Sample{Seq: 1, ScheduledAt: now, SentAt: now, DoneAt: now.Add(10 * time.Millisecond), Status: telemetry.HTTPStatus(500)}, time.Second)
	sink.Publish(telemetry.Sample{Seq: 2, ScheduledAt: now, SentAt: now, DoneAt: now, Status: telemetry.ClientErrorStatus(telemetry.ErrTimeout)}, time.Second)
	sink.Close()
	<-sink.Drained()
	return sink.SegmentReport()
}

func TestWriteTextIncludesCoreFields(t *testing.T) {
	res := report.Result{Report: buildReport(t), RunTag: "smoke"}
	var buf bytes.Buffer
	report.WriteText(&buf, res)

	out := buf.String()
	for _, want := range []string{"Sent:", "Successes:", "Client Errors:", "smoke", "Corrected Latency", "Actual Latency"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteTextIncludesSLOSection(t *testing.T) {
	res := report.Result{
		Report: buildReport(t),
		HadSLO: true,
		SLOResult: controller.Result{
			Found:            true,
			MaxCompliantRate: 123.4,
			Rounds:           5,
		},
	}
	var buf bytes.Buffer
	report.WriteText(&buf, res)

	out := buf.String()
	if !strings.Contains(out, "SLO Search:") || !strings.Contains(out, "123.40 rps") {
		t.Errorf("expected SLO section with max compliant rate, got:\n%s", out)
	}
}

func TestWriteTextLabelsDefaultMetricWhenCorrectionDisabled(t *testing.T) {
	res := report.Result{Report: buildReport(t), NoLatencyCorrection: true}
	var buf bytes.Buffer
	report.WriteText(&buf, res)

	out := buf.String()
	if !strings.Contains(out, "coordinated-omission correction disabled") {
		t.Errorf("expected default-metric section to note correction is disabled, got:\n%s", out)
	}
}

func TestWriteJSONSelectsDefaultLatencySeries(t *testing.T) {
	r := buildReport(t)

	corrected := report.Result{Report: r}
	var correctedBuf bytes.Buffer
	if err := report.WriteJSON(&correctedBuf, corrected); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var correctedDoc report.JSON
	if err := json.Unmarshal(correctedBuf.Bytes(), &correctedDoc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !correctedDoc.LatencyCorrected {
		t.Errorf("expected LatencyCorrected=true by default")
	}
	if correctedDoc.LatencyUs["p50"] != correctedDoc.CorrectedLatencyUs["p50"] {
		t.Errorf("expected default latency to match corrected latency by default")
	}

	uncorrected := report.Result{Report: r, NoLatencyCorrection: true}
	var uncorrectedBuf bytes.Buffer
	if err := report.WriteJSON(&uncorrectedBuf, uncorrected); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var uncorrectedDoc report.JSON
	if err := json.Unmarshal(uncorrectedBuf.Bytes(), &uncorrectedDoc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if uncorrectedDoc.LatencyCorrected {
		t.Errorf("expected LatencyCorrected=false when correction disabled")
	}
	if uncorrectedDoc.LatencyUs["p50"] != uncorrectedDoc.ActualLatencyUs["p50"] {
		t.Errorf("expected default latency to match actual latency when correction disabled")
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	res := report.Result{Report: buildReport(t), HadSLO: false}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, res); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var doc report.JSON
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Sent != 3 {
		t.Errorf("Sent = %d, want 3", doc.Sent)
	}
	if doc.Successes != 1 {
		t.Errorf("Successes = %d, want 1", doc.Successes)
	}
	if doc.ClientErrors != 1 {
		t.Errorf("ClientErrors = %d, want 1", doc.ClientErrors)
	}
	if doc.SLO != nil {
		t.Errorf("expected no SLO section in open-loop mode")
	}
}
