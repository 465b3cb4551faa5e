package errs

import (
	"context"
	"errors"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{ConfigError, 1},
		{TargetError, 2},
		{ProtocolError, 2},
		{LocalResourceError, 2},
		{ControllerError, 2},
		{Cancelled, 130},
	}
	for _, c := range cases {
		if got := c.kind.ExitCode(); got != c.want {
			t.Errorf("%s.ExitCode() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestExitCodeFromWrappedError(t *testing.T) {
	err := Wrap(TargetError, errors.New("connect: refused"), "dial target")
	if ExitCode(err) != 2 {
		t.Fatalf("ExitCode = %d, want 2", ExitCode(err))
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected error to be comparable to itself")
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatalf("expected exit code 0 for nil error")
	}
}

func TestKindOfContextCancelled(t *testing.T) {
	if KindOf(context.Canceled) != Cancelled {
		t.Fatalf("expected context.Canceled to map to Cancelled")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ProtocolError, cause, "bad response")
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose cause")
	}
}
