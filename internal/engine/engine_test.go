package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/engine"
)

func TestEngineRunsOpenLoopPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Targets:        []string{srv.URL},
		Method:         "GET",
		Rates:          []string{"50"},
		Durations:      []string{"100ms"},
		WorkerThreads:  4,
		Connections:    4,
		Signaller:      config.SignallerCooperative,
		Timeout:        2 * time.Second,
		ShutdownGrace:  time.Second,
		Controller:     config.ControllerOpenLoop,
	}

	e := engine.New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report.Sent == 0 {
		t.Fatalf("expected at least one request to have been sent")
	}
	if result.Report.Successes != result.Report.Sent {
		t.Fatalf("Successes = %d, want %d (all 200s)", result.Report.Successes, result.Report.Sent)
	}
}

func TestEngineStopsOnClientError(t *testing.T) {
	cfg := &config.Config{
		Targets:           []string{"http://127.0.0.1:1"},
		Method:            "GET",
		Rates:             []string{"100"},
		Durations:         []string{"1s"},
		WorkerThreads:     2,
		Connections:       2,
		Signaller:         config.SignallerCooperative,
		Timeout:           200 * time.Millisecond,
		ShutdownGrace:     200 * time.Millisecond,
		StopOnClientError: true,
		Controller:        config.ControllerOpenLoop,
	}

	e := engine.New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := e.Run(ctx)
	if err == nil {
		t.Fatalf("expected Run to fail due to stop-on-client-error")
	}
}

func TestEngineRunsSLOSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Targets:       []string{srv.URL},
		Method:        "GET",
		WorkerThreads: 4,
		Connections:   4,
		Signaller:     config.SignallerCooperative,
		Timeout:       2 * time.Second,
		ShutdownGrace: time.Second,
		Controller:    config.ControllerSLOSearch,
		SLO: config.SLOConfig{
			Quantile:       0.99,
			Threshold:      500 * time.Millisecond,
			MinSuccessRate: 0.9,
			RateMin:        10,
			RateMax:        40,
			Window:         50 * time.Millisecond,
			Epsilon:        0.2,
			MaxRounds:      5,
		},
	}

	e := engine.New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.HadSLO {
		t.Fatalf("expected HadSLO to be true")
	}
	if !result.SLOResult.Found {
		t.Fatalf("expected a compliant rate to be found against a fast local server")
	}
}
