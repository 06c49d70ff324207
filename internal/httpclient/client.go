package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/0x-wen/rlt/internal/tracing"
)

// RequestSpec describes the request sent by every iteration.
type RequestSpec struct {
	Method    string
	URL       string
	Headers   http.Header
	Body      string
	BodyFile  string
	RequestID bool // set a fresh X-Request-Id on every request
	Propagate bool // inject W3C trace context from the request context
}

type RequestBuilder struct {
	method    string
	target    string
	headers   http.Header
	payload   Payload
	requestID bool
	propagate bool
}

func NewRequestBuilder(spec RequestSpec) (*RequestBuilder, error) {
	target := strings.TrimSpace(spec.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}

	payload, err := LoadPayload(spec.Body, spec.BodyFile)
	if err != nil {
		return nil, err
	}

	headers := spec.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	if method == http.MethodPost && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", DefaultContentType)
	}

	return &RequestBuilder{
		method:    method,
		target:    target,
		headers:   headers,
		payload:   payload,
		requestID: spec.RequestID,
		propagate: spec.Propagate,
	}, nil
}

// Method returns the HTTP method of built requests.
func (b *RequestBuilder) Method() string { return b.method }

// Target returns the URL of built requests.
func (b *RequestBuilder) Target() string { return b.target }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	// A *bytes.Reader body gives the request its ContentLength and GetBody.
	req, err := http.NewRequestWithContext(ctx, b.method, b.target, b.payload.reader())
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()

	if b.requestID {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	if b.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	return req, nil
}

// ParseHeaders parses "Key: Value" pairs into a canonical header set.
func ParseHeaders(pairs []string) (http.Header, error) {
	headers := http.Header{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q (expected Key: Value)", pair)
		}
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n \t") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", http.CanonicalHeaderKey(trimmedKey))
		}
		headers.Add(http.CanonicalHeaderKey(trimmedKey), strings.TrimSpace(value))
	}
	return headers, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
