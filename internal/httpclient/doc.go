// Package httpclient provides the HTTP plumbing of the http-bench workload.
//
// The httpclient package handles HTTP request construction and execution with support for:
//   - Configurable timeouts and connection pooling
//   - Request bodies from inline content or files, loaded once and sent byte for byte
//   - POST requests default to Content-Type: application/json
//   - Per-request X-Request-Id headers and W3C trace context injection
//   - Response accounting: bytes read and items counted from a JSON path
//
// # Request Building
//
// Use [NewRequestBuilder] to create a builder from a [RequestSpec]:
//
//	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
//		Method: "POST",
//		URL:    "http://localhost:8080/orders",
//		Body:   `{"sku":"a-1"}`,
//	})
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// # HTTP Client
//
// The [NewClient] function creates an HTTP client optimized for load testing with
// configurable timeouts and connection reuse:
//
//	client := httpclient.NewClient(30 * time.Second)
//	resp, err := client.Do(req)
//	n, items, err := httpclient.ReadResponse(resp, "data.items")
package httpclient
