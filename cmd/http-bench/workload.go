package main

import (
	"context"
	"net/http"
	"time"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/internal/httpclient"
)

// httpSuite sends one request per iteration. Each worker owns its client and
// connection pool.
type httpSuite struct {
	builder   *httpclient.RequestBuilder
	timeout   time.Duration
	itemsPath string
}

func (s *httpSuite) Name() string {
	return s.builder.Method() + " " + s.builder.Target()
}

func (s *httpSuite) State(ctx context.Context, workerID uint32) (*http.Client, error) {
	return httpclient.NewClient(s.timeout), nil
}

func (s *httpSuite) Bench(ctx context.Context, client *http.Client, info bench.IterInfo) (bench.IterReport, error) {
	req, err := s.builder.Build(ctx)
	if err != nil {
		return bench.IterReport{}, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return bench.IterReport{}, err
	}
	n, items, err := httpclient.ReadResponse(resp, s.itemsPath)
	latency := time.Since(start)
	if err != nil {
		return bench.IterReport{}, err
	}

	return bench.IterReport{
		Duration: latency,
		Status:   bench.StatusFromHTTP(resp.StatusCode),
		Bytes:    n,
		Items:    items,
	}, nil
}

func (s *httpSuite) Teardown(ctx context.Context, client *http.Client, info bench.IterInfo) error {
	client.CloseIdleConnections()
	return nil
}
