// Package pool bounds how many requests a Worker has in flight against a
// single target at once, approximating the "N connections per target"
// semantics of the --connections flag on top of net/http's own keep-alive
// transport. Exact behavior over HTTP/2 is implementation-defined, since
// HTTP/2 multiplexes on one connection regardless of how many slots are
// configured.
package pool

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Pool hands out a bounded number of concurrency slots per key. A Worker
// acquires a slot before dispatching a request to a target and releases it
// once the response is fully read.
type Pool struct {
	slots sync.Map // map[string]chan struct{}
	size  int
}

// New creates a Pool that allows up to size concurrent slots per key.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size}
}

// Acquire blocks until a slot for key is available or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context, key string) error {
	slotsVal, _ := p.slots.LoadOrStore(key, newFullChannel(p.size))
	slots := slotsVal.(chan struct{})
	select {
	case <-slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot for key. It must be called exactly once per
// successful Acquire.
func (p *Pool) Release(key string) {
	slotsVal, ok := p.slots.Load(key)
	if !ok {
		return
	}
	slots := slotsVal.(chan struct{})
	select {
	case slots <- struct{}{}:
	default:
		// Release without a matching Acquire; drop rather than block or panic.
	}
}

func newFullChannel(size int) chan struct{} {
	ch := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		ch <- struct{}{}
	}
	return ch
}

// Key generates a deterministic slot key from a target URL and the headers
// that accompany requests to it.
func Key(target string, headers http.Header) string {
	var sb strings.Builder
	sb.WriteString(target)
	sb.WriteString("|")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		vals := headers[k]
		for i, v := range vals {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(v)
		}
		sb.WriteString(";")
	}
	return sb.String()
}
