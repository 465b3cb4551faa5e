package dashboard

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

func newTestModel(sink *telemetry.Sink, cancelled *bool) model {
	return model{
		sink:      sink,
		cfg:       Config{Targets: []string{"http://example.test"}, Controller: config.ControllerOpenLoop, Workers: 4, RunTag: "smoke"},
		interval:  time.Millisecond,
		cancel:    func() { *cancelled = true },
		startTime: time.Now(),
		prog:      progress.New(progress.WithDefaultGradient()),
	}
}

func TestModelQuitsAndCancelsOnQ(t *testing.T) {
	sink := telemetry.NewSink(10, false, nil)
	var cancelled bool
	m := newTestModel(sink, &cancelled)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Fatal("expected cancel to be called on q")
	}
	if cmd == nil {
		t.Fatal("expected a tea.Quit command")
	}
}

func TestModelTickRefreshesTotals(t *testing.T) {
	sink := telemetry.NewSink(10, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	now := time.Now()
	sink.Publish(telemetry.Sample{Seq: 0, ScheduledAt: now, SentAt: now, DoneAt: now, Status: telemetry.HTTPStatus(200)}, time.Second)
	time.Sleep(10 * time.Millisecond)

	var cancelled bool
	m := newTestModel(sink, &cancelled)
	updated, cmd := m.Update(tickMsg(time.Now()))
	mm := updated.(model)

	if mm.sent != 1 || mm.successes != 1 {
		t.Fatalf("expected totals to refresh from sink, got sent=%d successes=%d", mm.sent, mm.successes)
	}
	if cmd == nil {
		t.Fatal("expected a follow-up tick command")
	}
}

func TestViewRendersCounters(t *testing.T) {
	sink := telemetry.NewSink(10, false, nil)
	var cancelled bool
	m := newTestModel(sink, &cancelled)
	m.sent, m.successes, m.rps = 10, 8, 5.5

	view := m.View()
	if !strings.Contains(view, "sent 10") || !strings.Contains(view, "successes 8") {
		t.Errorf("expected view to contain counters, got %q", view)
	}
}

func TestViewShowsQuittingMessage(t *testing.T) {
	sink := telemetry.NewSink(10, false, nil)
	var cancelled bool
	m := newTestModel(sink, &cancelled)
	m.quitting = true

	if !strings.Contains(m.View(), "stopping") {
		t.Errorf("expected quitting view to mention stopping, got %q", m.View())
	}
}
