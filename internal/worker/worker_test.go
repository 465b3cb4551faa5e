package worker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/httpclient"
	"github.com/ashlineldridge/metron/internal/pool"
	"github.com/ashlineldridge/metron/internal/signal"
	"github.com/ashlineldridge/metron/internal/telemetry"
	"github.com/ashlineldridge/metron/internal/worker"
)

func newTestWorker(t *testing.T, target string) (*worker.Worker, *telemetry.Sink) {
	t.Helper()
	cfg := &config.Config{Targets: []string{target}, Method: "GET"}
	spec, err := httpclient.NewSpec(cfg)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	client := httpclient.NewClient(2*time.Second, 4)
	slots := pool.New(4)
	sink := telemetry.NewSink(16, false, nil)
	return worker.New(1, client, spec, slots, sink, time.Second, nil, nil), sink
}

func TestWorkerRecordsSuccessSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	w, sink := newTestWorker(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)

	w.Handle(context.Background(), signal.Signal{Seq: 0, ScheduledAt: time.Now(), SegmentID: 0})

	sink.Close()
	<-sink.Drained()
	cancel()

	report := sink.SegmentReport()
	if report.Sent != 1 || report.Successes != 1 {
		t.Fatalf("report = %+v, want Sent=1 Successes=1", report)
	}
}

func TestWorkerRecordsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w, sink := newTestWorker(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)

	w.Handle(context.Background(), signal.Signal{Seq: 0, ScheduledAt: time.Now()})

	sink.Close()
	<-sink.Drained()
	cancel()

	report := sink.SegmentReport()
	if report.NonSuccessByClass["5xx"] != 1 {
		t.Fatalf("NonSuccessByClass[5xx] = %d, want 1", report.NonSuccessByClass["5xx"])
	}
}

func TestWorkerClassifiesConnectionRefusedAsClientError(t *testing.T) {
	// Port 1 is reserved and refuses connections on loopback.
	w, sink := newTestWorker(t, "http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)

	w.Handle(context.Background(), signal.Signal{Seq: 0, ScheduledAt: time.Now()})

	sink.Close()
	<-sink.Drained()
	cancel()

	report := sink.SegmentReport()
	if report.ClientErrors() != 1 {
		t.Fatalf("ClientErrors() = %d, want 1", report.ClientErrors())
	}
}
