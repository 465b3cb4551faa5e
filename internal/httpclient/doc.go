// Package httpclient builds HTTP requests from an immutable request
// specification and constructs transports tuned for sustained load.
//
// # Request Building
//
// Use [NewSpec] to compile configuration into a [Spec], then call
// [Spec.Request] once per dispatched signal:
//
//	spec, err := httpclient.NewSpec(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := spec.Request(ctx, seq)
//
// Targets are assigned round-robin by sequence number, so concurrent
// Workers can call Request without coordinating among themselves.
//
// # HTTP Client
//
// [NewClient] returns an *http.Client with a transport sized for reuse
// across many requests to a small number of targets:
//
//	client := httpclient.NewClient(30*time.Second, 32)
//	resp, err := client.Do(req)
package httpclient
