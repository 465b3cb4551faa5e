package telemetry

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SegmentReport is the consistent snapshot the Controller polls: the sketch
// and counters are all taken under the same lock in Sink.SegmentReport, so a
// Controller never sees a quantile computed against one window's samples and
// a success rate computed against another's.
type SegmentReport struct {
	WindowStart, WindowEnd time.Time

	Sent               int64
	Successes          int64
	NonSuccessByClass  map[string]int64
	ClientErrorsByKind map[ClientErrorKind]int64
	SkippedInstants    uint64
	TelemetryDrops     uint64

	SuccessRate float64
	AchievedRPS float64

	correctedSnapshot *hdrhistogram.Snapshot
	actualSnapshot    *hdrhistogram.Snapshot
}

// CorrectedQuantile returns the corrected-latency value at quantile q (0-100)
// observed during the window, or 0 if no samples completed.
func (r SegmentReport) CorrectedQuantile(q float64) time.Duration {
	return quantileOf(r.correctedSnapshot, q)
}

// ActualQuantile returns the actual-latency value at quantile q (0-100).
func (r SegmentReport) ActualQuantile(q float64) time.Duration {
	return quantileOf(r.actualSnapshot, q)
}

// DefaultQuantile returns the latency value at quantile q that Metron treats
// as its primary reported metric: corrected by default, falling back to
// actual (sent-to-done) latency when coordinated-omission correction has
// been disabled.
func (r SegmentReport) DefaultQuantile(q float64, noLatencyCorrection bool) time.Duration {
	if noLatencyCorrection {
		return r.ActualQuantile(q)
	}
	return r.CorrectedQuantile(q)
}

func quantileOf(snap *hdrhistogram.Snapshot, q float64) time.Duration {
	if snap == nil {
		return 0
	}
	h := hdrhistogram.Import(snap)
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

// ClientErrors returns the total count of requests that never reached an
// HTTP response.
func (r SegmentReport) ClientErrors() int64 {
	var total int64
	for _, n := range r.ClientErrorsByKind {
		total += n
	}
	return total
}
