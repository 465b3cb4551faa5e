package report_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/report"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

func TestProgressReporterPrintsTotals(t *testing.T) {
	sink := telemetry.NewSink(10, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	now := time.Now()
	sink.Publish(telemetry.Sample{Seq: 0, ScheduledAt: now, SentAt: now, DoneAt: now, Status: telemetry.HTTPStatus(200)}, time.Second)

	var buf bytes.Buffer
	p := report.NewProgressReporter(sink, 10*time.Millisecond, &buf)
	p.Start()
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	if !strings.Contains(buf.String(), "Sent:") {
		t.Errorf("expected progress output to contain 'Sent:', got %q", buf.String())
	}
}
