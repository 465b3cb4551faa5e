package pool

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(1)
	ctx := context.Background()
	if err := p.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() { acquired <- p.Acquire(ctx, "a") }()

	select {
	case <-acquired:
		t.Fatalf("second Acquire should block while the only slot is held")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release("a")
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Acquire after Release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Acquire did not unblock after Release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	p := New(1)
	if err := p.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx, "a"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestKeyIsOrderIndependentOverHeaders(t *testing.T) {
	h1 := http.Header{"A": {"1"}, "B": {"2"}}
	h2 := http.Header{"B": {"2"}, "A": {"1"}}
	if Key("http://x/", h1) != Key("http://x/", h2) {
		t.Fatalf("Key should not depend on header insertion order")
	}
}

func TestKeyDistinguishesTargets(t *testing.T) {
	if Key("http://a/", nil) == Key("http://b/", nil) {
		t.Fatalf("Key should distinguish different targets")
	}
}
