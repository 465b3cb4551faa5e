package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/telemetry"
)

func sampleAt(seq uint64, scheduled time.Time, latency time.Duration, status telemetry.Status) telemetry.Sample {
	return telemetry.Sample{
		Seq:         seq,
		ScheduledAt: scheduled,
		SentAt:      scheduled,
		DoneAt:      scheduled.Add(latency),
		Status:      status,
	}
}

func TestSinkAggregatesSuccessesAndLatency(t *testing.T) {
	sink := telemetry.NewSink(16, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	start := time.Now()
	for i := uint64(0); i < 100; i++ {
		sink.Publish(sampleAt(i, start, time.Duration(i+1)*time.Millisecond, telemetry.HTTPStatus(200)), time.Second)
	}
	sink.Close()
	<-sink.Drained()

	report := sink.SegmentReport()
	if report.Sent != 100 {
		t.Fatalf("Sent = %d, want 100", report.Sent)
	}
	if report.Successes != 100 {
		t.Fatalf("Successes = %d, want 100", report.Successes)
	}
	if report.SuccessRate != 1 {
		t.Fatalf("SuccessRate = %f, want 1", report.SuccessRate)
	}
	if q := report.CorrectedQuantile(50); q < 40*time.Millisecond || q > 60*time.Millisecond {
		t.Fatalf("CorrectedQuantile(50) = %s, want ~50ms", q)
	}
}

func TestSinkClassifiesNonSuccessAndClientErrors(t *testing.T) {
	sink := telemetry.NewSink(16, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	start := time.Now()
	sink.Publish(sampleAt(0, start, time.Millisecond, telemetry.HTTPStatus(200)), time.Second)
	sink.Publish(sampleAt(1, start, time.Millisecond, telemetry.HTTPStatus(500)), time.Second)
	sink.Publish(sampleAt(2, start, time.Millisecond, telemetry.ClientErrorStatus(telemetry.ErrTimeout)), time.Second)
	sink.Close()
	<-sink.Drained()

	report := sink.SegmentReport()
	if report.Sent != 3 {
		t.Fatalf("Sent = %d, want 3", report.Sent)
	}
	if report.Successes != 1 {
		t.Fatalf("Successes = %d, want 1", report.Successes)
	}
	if report.NonSuccessByClass["5xx"] != 1 {
		t.Fatalf("NonSuccessByClass[5xx] = %d, want 1", report.NonSuccessByClass["5xx"])
	}
	if report.ClientErrorsByKind[telemetry.ErrTimeout] != 1 {
		t.Fatalf("ClientErrorsByKind[timeout] = %d, want 1", report.ClientErrorsByKind[telemetry.ErrTimeout])
	}
	if report.ClientErrors() != 1 {
		t.Fatalf("ClientErrors() = %d, want 1", report.ClientErrors())
	}
}

func TestSegmentReportResetsWindow(t *testing.T) {
	sink := telemetry.NewSink(16, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	start := time.Now()
	sink.Publish(sampleAt(0, start, time.Millisecond, telemetry.HTTPStatus(200)), time.Second)
	time.Sleep(10 * time.Millisecond)
	first := sink.SegmentReport()
	if first.Sent != 1 {
		t.Fatalf("first.Sent = %d, want 1", first.Sent)
	}

	sink.Close()
	<-sink.Drained()
	second := sink.SegmentReport()
	if second.Sent != 0 {
		t.Fatalf("second.Sent = %d, want 0 after window reset", second.Sent)
	}
}

func TestPublishDropsWhenSinkIsFullAndSlow(t *testing.T) {
	sink := telemetry.NewSink(1, false, nil)
	// Fill the single slot without a consumer running.
	sink.Publish(sampleAt(0, time.Now(), time.Millisecond, telemetry.HTTPStatus(200)), 5*time.Millisecond)
	sink.Publish(sampleAt(1, time.Now(), time.Millisecond, telemetry.HTTPStatus(200)), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)
	sink.Close()
	<-sink.Drained()

	report := sink.SegmentReport()
	if report.TelemetryDrops == 0 {
		t.Fatalf("expected at least one telemetry drop")
	}
}

func TestStatusClassification(t *testing.T) {
	if !telemetry.HTTPStatus(204).IsSuccess() {
		t.Fatalf("204 should be a success")
	}
	if telemetry.HTTPStatus(404).IsSuccess() {
		t.Fatalf("404 should not be a success")
	}
	if telemetry.HTTPStatus(404).Class() != "4xx" {
		t.Fatalf("Class() = %s, want 4xx", telemetry.HTTPStatus(404).Class())
	}
	if !telemetry.ClientErrorStatus(telemetry.ErrDNS).IsClientError() {
		t.Fatalf("expected ClientErrorStatus to report IsClientError")
	}
}
