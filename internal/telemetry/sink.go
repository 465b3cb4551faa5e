package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/ashlineldridge/metron/internal/log"
)

// latencyLowUs and latencyHighUs bound the trackable corrected/actual
// latency range: 1µs to 60s, wide enough for both sub-millisecond local
// targets and multi-second tail latencies under overload.
const (
	latencyLowUs  = 1
	latencyHighUs = 60_000_000
	latencySigFig = 3
)

// Sink consumes Samples from one or more Workers and maintains the rolling
// latency sketch and counters a SegmentReport is built from. It never
// applies backpressure to its producers: Publish drops a Sample rather than
// block a Worker's dispatch loop.
type Sink struct {
	in     chan Sample
	logger log.Logger

	retain bool

	mu          sync.Mutex
	corrected   *hdrhistogram.Histogram
	actual      *hdrhistogram.Histogram
	sent        int64
	successes   int64
	byClass     map[string]int64
	byKind      map[ClientErrorKind]int64
	windowStart time.Time
	retained    []Sample

	skippedInstants atomic.Uint64
	telemetryDrops  atomic.Uint64

	// totalSent and totalSuccesses never reset across SegmentReport calls,
	// for a live progress display that outlives any one window.
	totalSent      atomic.Int64
	totalSuccesses atomic.Int64
	runStart       time.Time

	drained chan struct{}
}

// NewSink returns a Sink ready to be run. capacity bounds the internal
// channel; retain keeps every Sample for the final report (only sensible for
// runs short enough to fit in memory).
func NewSink(capacity int, retain bool, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.Nop
	}
	return &Sink{
		in:          make(chan Sample, capacity),
		logger:      logger,
		retain:      retain,
		corrected:   hdrhistogram.New(latencyLowUs, latencyHighUs, latencySigFig),
		actual:      hdrhistogram.New(latencyLowUs, latencyHighUs, latencySigFig),
		byClass:     make(map[string]int64),
		byKind:      make(map[ClientErrorKind]int64),
		windowStart: time.Now(),
		runStart:    time.Now(),
		drained:     make(chan struct{}),
	}
}

// Totals returns cumulative sent/success counts and the overall achieved
// RPS since the Sink was created, unaffected by SegmentReport's window
// resets. Used by a live progress display, which needs a monotonic view
// the Controller's windowed reports don't provide.
func (s *Sink) Totals() (sent, successes int64, rps float64) {
	sent = s.totalSent.Load()
	successes = s.totalSuccesses.Load()
	if elapsed := time.Since(s.runStart).Seconds(); elapsed > 0 {
		rps = float64(sent) / elapsed
	}
	return sent, successes, rps
}

// Publish hands a Sample to the Sink. It tries a non-blocking send first; on
// a full channel it waits up to dropAfter before giving up and counting a
// telemetry drop, so a slow Sink never becomes dispatch backpressure.
func (s *Sink) Publish(sample Sample, dropAfter time.Duration) {
	select {
	case s.in <- sample:
		return
	default:
	}

	timer := time.NewTimer(dropAfter)
	defer timer.Stop()
	select {
	case s.in <- sample:
	case <-timer.C:
		s.telemetryDrops.Add(1)
		s.logger.Warnf("telemetry: dropped sample seq=%d, sink is backed up", sample.Seq)
	}
}

// RecordSkipped adds to the skipped-instants counter surfaced by a
// SegmentReport, fed from the Signaller's own counters.
func (s *Sink) RecordSkipped(n uint64) {
	s.skippedInstants.Add(n)
}

// Run drains Samples until ctx is cancelled and the channel is closed by the
// producer side, then returns. Per the shutdown contract, a cancelled ctx
// does not stop the drain early: the Sink keeps consuming until the channel
// closes so no in-flight Sample is lost.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.drained)
	for sample := range s.in {
		s.record(sample)
	}
	_ = ctx
}

// Close signals no more Samples will be published, allowing Run to return
// once the channel drains.
func (s *Sink) Close() {
	close(s.in)
}

// Drained is closed once Run has consumed every Sample sent before Close.
func (s *Sink) Drained() <-chan struct{} {
	return s.drained
}

func (s *Sink) record(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent++
	s.totalSent.Add(1)
	if sample.Status.IsSuccess() {
		s.successes++
		s.totalSuccesses.Add(1)
	}
	if !sample.Status.IsSuccess() {
		s.byClass[sample.Status.Class()]++
	}
	if sample.Status.IsClientError() {
		s.byKind[sample.Status.ClientError]++
	}

	if !sample.DoneAt.IsZero() {
		recordClamped(s.corrected, sample.CorrectedLatency())
		recordClamped(s.actual, sample.ActualLatency())
	}

	if s.retain {
		s.retained = append(s.retained, sample)
	}
}

func recordClamped(h *hdrhistogram.Histogram, d time.Duration) {
	if d <= 0 {
		return
	}
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// SegmentReport takes a consistent snapshot of the Sink's state since the
// last report and resets the window, per the Controller's contract of a
// rolling sketch "sized by the Controller's observation window": the
// Controller calls SegmentReport once per window, so the Sink's own notion
// of "window" is simply "since the last report".
func (s *Sink) SegmentReport() SegmentReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	report := SegmentReport{
		WindowStart:        s.windowStart,
		WindowEnd:          now,
		Sent:               s.sent,
		Successes:          s.successes,
		NonSuccessByClass:  copyInt64Map(s.byClass),
		ClientErrorsByKind: copyKindMap(s.byKind),
		SkippedInstants:    s.skippedInstants.Load(),
		TelemetryDrops:     s.telemetryDrops.Load(),
		correctedSnapshot:  s.corrected.Export(),
		actualSnapshot:     s.actual.Export(),
	}
	if s.sent > 0 {
		report.SuccessRate = float64(s.successes) / float64(s.sent)
	}
	if elapsed := now.Sub(s.windowStart).Seconds(); elapsed > 0 {
		report.AchievedRPS = float64(s.sent) / elapsed
	}

	s.corrected.Reset()
	s.actual.Reset()
	s.sent, s.successes = 0, 0
	s.byClass = make(map[string]int64)
	s.byKind = make(map[ClientErrorKind]int64)
	s.windowStart = now

	return report
}

// FinalReport returns a SegmentReport for the text/JSON report writer,
// together with the retained Samples. The report is taken with
// SegmentReport, so it covers only the window since the previous
// SegmentReport call and resets that window like any other call.
func (s *Sink) FinalReport() (SegmentReport, []Sample) {
	report := s.SegmentReport()
	s.mu.Lock()
	retained := s.retained
	s.mu.Unlock()
	return report, retained
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyKindMap(m map[ClientErrorKind]int64) map[ClientErrorKind]int64 {
	out := make(map[ClientErrorKind]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
