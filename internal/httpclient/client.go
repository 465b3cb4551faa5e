package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashlineldridge/metron/internal/config"
)

// Spec is an immutable request specification: everything needed to build a
// request for any dispatched signal. It never mutates after construction,
// so every Worker goroutine can share one without synchronization.
type Spec struct {
	method  string
	targets []string
	headers http.Header
	body    BodySource
}

// NewSpec builds a Spec from config. Targets are assigned round-robin by
// sequence number (seq mod len(targets)).
func NewSpec(cfg *config.Config) (*Spec, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	targets := make([]string, 0, len(cfg.Targets))
	for _, raw := range cfg.Targets {
		target := strings.TrimSpace(raw)
		if target == "" {
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, errors.New("at least one target URL is required")
	}

	method := strings.TrimSpace(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	body, err := newBodySource(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &Spec{method: method, targets: targets, headers: headers, body: body}, nil
}

// Target returns the target URL assigned to seq under round-robin
// distribution.
func (s *Spec) Target(seq uint64) string {
	return s.targets[seq%uint64(len(s.targets))]
}

// NumTargets returns the number of configured targets.
func (s *Spec) NumTargets() int {
	return len(s.targets)
}

// Headers returns the headers applied to every request this Spec builds,
// for callers that need to key off them (e.g. the connection-slot pool)
// without constructing a request.
func (s *Spec) Headers() http.Header {
	return s.headers
}

// Method returns the HTTP method applied to every request this Spec builds.
func (s *Spec) Method() string {
	return s.method
}

// Request builds a new *http.Request for the given sequence number. Each
// call produces an independent, fully-populated request; nothing about the
// Spec is consumed or mutated.
func (s *Spec) Request(ctx context.Context, seq uint64) (*http.Request, error) {
	reader, err := s.body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.Target(seq), reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	if len(s.headers) > 0 {
		req.Header = s.headers.Clone()
	}
	if length, ok := s.body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return s.body.NewReader()
	}

	return req, nil
}

// NewClient builds an *http.Client tuned for sustained load generation:
// a single persistent transport reused across all requests a Worker issues,
// with enough idle connections per host that keep-alive reuse doesn't stall
// on dial.
func NewClient(timeout time.Duration, connectionsPerTarget int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if connectionsPerTarget <= 0 {
		connectionsPerTarget = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          connectionsPerTarget * 8,
		MaxIdleConnsPerHost:   connectionsPerTarget,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
