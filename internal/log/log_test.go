package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, Warn)

	logger.Debugf("should not appear")
	logger.Infof("should not appear either")
	logger.Warnf("warn message %d", 1)
	logger.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn message 1") || !strings.Contains(out, "error message") {
		t.Fatalf("expected warn/error messages present, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"off": Off, "info": Info, "debug": Debug, "warn": Warn, "error": Error, "": Off}
	for s, want := range cases {
		got, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	Nop.Debugf("x")
	Nop.Infof("x")
	Nop.Warnf("x")
	Nop.Errorf("x")
}
