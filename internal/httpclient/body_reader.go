package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashlineldridge/metron/internal/config"
)

// BodySource produces the body for every request a Spec builds. NewReader
// is called once per request, so a Spec backed by a file source can replay
// the same file across millions of dispatched requests without holding its
// contents in memory.
type BodySource interface {
	NewReader() (io.ReadCloser, error)
	ContentLength() (int64, bool)
}

// newBodySource resolves cfg.Payload/cfg.PayloadFile into the BodySource a
// Spec's requests read from. Config.Validate already rejects setting both,
// so the mutual-exclusion check here only guards direct callers that skip
// validation (as the tests in this package do).
func newBodySource(cfg *config.Config) (BodySource, error) {
	payloadFile := strings.TrimSpace(cfg.PayloadFile)
	if cfg.Payload != "" && payloadFile != "" {
		return nil, fmt.Errorf("payload and payload file cannot both be provided")
	}

	if cfg.Payload != "" {
		return inlinePayload(cfg.Payload), nil
	}

	if payloadFile != "" {
		info, err := os.Stat(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("payload file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("payload file %q is a directory", payloadFile)
		}
		return filePayload{path: payloadFile, size: info.Size()}, nil
	}

	return emptyPayload{}, nil
}

type inlinePayload []byte

func (p inlinePayload) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p)), nil
}

func (p inlinePayload) ContentLength() (int64, bool) {
	return int64(len(p)), true
}

// filePayload re-opens its file for every request rather than caching its
// contents, so an arbitrarily large payload file never has to fit in
// memory all at once.
type filePayload struct {
	path string
	size int64
}

func (p filePayload) NewReader() (io.ReadCloser, error) {
	return os.Open(p.path)
}

func (p filePayload) ContentLength() (int64, bool) {
	return p.size, true
}

type emptyPayload struct{}

func (emptyPayload) NewReader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (emptyPayload) ContentLength() (int64, bool) {
	return 0, true
}
