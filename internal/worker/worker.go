// Package worker issues one HTTP request per dispatched Signal and reports
// the outcome as a telemetry Sample. A Worker never retries: retry policy
// would bias the very rate measurement the engine exists to produce.
package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ashlineldridge/metron/internal/httpclient"
	"github.com/ashlineldridge/metron/internal/log"
	"github.com/ashlineldridge/metron/internal/pool"
	"github.com/ashlineldridge/metron/internal/signal"
	"github.com/ashlineldridge/metron/internal/telemetry"
	"github.com/ashlineldridge/metron/internal/tracing"
)

// Worker owns an HTTP client and issues requests built from a shared Spec.
// Multiple Workers are safe to run concurrently: the Spec is immutable and
// the http.Client manages its own connection pool internally.
type Worker struct {
	id        int
	client    *http.Client
	spec      *httpclient.Spec
	slots     *pool.Pool
	sink      *telemetry.Sink
	dropAfter time.Duration
	logger    log.Logger
	tracer    trace.Tracer
}

// New returns a Worker. slots bounds in-flight requests per target, per the
// run's --connections setting; sink is where completed Samples are
// published, with dropAfter governing how long Publish waits before
// counting a telemetry drop rather than delaying dispatch. tracer may be
// nil, in which case a no-op tracer is used and StartRequestSpan is cheap.
func New(id int, client *http.Client, spec *httpclient.Spec, slots *pool.Pool, sink *telemetry.Sink, dropAfter time.Duration, logger log.Logger, tracer trace.Tracer) *Worker {
	if logger == nil {
		logger = log.Nop
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("metron")
	}
	return &Worker{id: id, client: client, spec: spec, slots: slots, sink: sink, dropAfter: dropAfter, logger: logger, tracer: tracer}
}

// Handle issues the request for sig, publishes its Sample, and returns the
// same Sample so the Coordinator can apply stop-on-client-error /
// stop-on-non-2xx policy without re-deriving the outcome. If ctx ends
// before a connection slot is free, no request is issued, nothing is
// published, and the returned Sample carries only the Signal's fields.
func (w *Worker) Handle(ctx context.Context, sig signal.Signal) telemetry.Sample {
	target := w.spec.Target(sig.Seq)
	key := pool.Key(target, w.spec.Headers())

	if err := w.slots.Acquire(ctx, key); err != nil {
		return telemetry.Sample{Seq: sig.Seq, SegmentID: sig.SegmentID, ScheduledAt: sig.ScheduledAt}
	}
	defer w.slots.Release(key)

	sample := telemetry.Sample{
		Seq:         sig.Seq,
		SegmentID:   sig.SegmentID,
		ScheduledAt: sig.ScheduledAt,
		SentAt:      time.Now(),
	}

	spanCtx, span := tracing.StartRequestSpan(ctx, w.tracer, w.spec.Method(), target, sig.Seq)
	defer span.End()

	req, err := w.spec.Request(spanCtx, sig.Seq)
	if err != nil {
		return w.fail(sample, err, span)
	}
	if req.ContentLength > 0 {
		sample.BytesOut = req.ContentLength
	}
	tracing.InjectHTTPHeaders(spanCtx, req.Header)

	resp, err := w.client.Do(req)
	if err != nil {
		return w.fail(sample, err, span)
	}
	defer resp.Body.Close()

	sample.FirstByteAt = time.Now()
	bytesIn, _ := io.Copy(io.Discard, resp.Body)
	sample.DoneAt = time.Now()
	sample.BytesIn = bytesIn
	sample.Status = telemetry.HTTPStatus(resp.StatusCode)

	tracing.EndSpan(span, resp.StatusCode, nil)
	w.sink.Publish(sample, w.dropAfter)
	return sample
}

func (w *Worker) fail(sample telemetry.Sample, err error, span trace.Span) telemetry.Sample {
	sample.DoneAt = time.Now()
	sample.Status = telemetry.ClientErrorStatus(classify(err))
	w.logger.Debugf("worker %d: seq=%d %s", w.id, sample.Seq, err)
	tracing.EndSpan(span, 0, err)
	w.sink.Publish(sample, w.dropAfter)
	return sample
}

// classify maps a transport-level error to the ClientErrorKind a Sample
// carries. It errs toward ErrOther rather than panicking or guessing wrong
// on an error shape it doesn't recognize.
func classify(err error) telemetry.ClientErrorKind {
	if err == nil {
		return telemetry.ErrOther
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return telemetry.ErrDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return telemetry.ErrTLS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return telemetry.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return telemetry.ErrTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return telemetry.ErrReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return telemetry.ErrConnect
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return telemetry.ErrConnect
	}

	msg := err.Error()
	if strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:") {
		return telemetry.ErrTLS
	}
	if strings.Contains(msg, "connection reset") {
		return telemetry.ErrReset
	}

	return telemetry.ErrOther
}
