package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x-wen/rlt/cli"
	"github.com/0x-wen/rlt/internal/httpclient"
)

type workloadFlags struct {
	method    string
	data      string
	dataFile  string
	headers   []string
	timeout   time.Duration
	itemsPath string
	requestID bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var wf workloadFlags

	cmd := &cobra.Command{
		Use:   "http-bench [flags] URL",
		Short: "Benchmark an HTTP endpoint with GET or POST requests",
		Long: `http-bench sends GET or POST requests to URL from a pool of workers
and reports latency percentiles, throughput and status distribution.`,
		Example: `  http-bench -c 10 -d 30s https://api.example.com/health
  http-bench -m POST --data '{"name":"rlt"}' -n 1000 https://api.example.com/items
  http-bench -r 200 --arrival-model poisson --items-path '$.results' -d 1m https://api.example.com/search`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			suite, err := newHTTPSuite(args[0], wf, cfg.Tracing.ShouldPropagate())
			if err != nil {
				return err
			}
			return cli.Run[*http.Client](cmd.Context(), cfg, suite, cli.Env{
				Workload: suite.Name(),
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
		},
	}

	cli.RegisterFlags(cmd)

	flags := cmd.Flags()
	flags.StringVarP(&wf.method, "method", "m", http.MethodGet, "HTTP method: GET or POST")
	flags.StringVar(&wf.data, "data", "", "Request body, sent as given")
	flags.StringVar(&wf.dataFile, "data-file", "", "Read the request body from this file")
	flags.StringSliceVarP(&wf.headers, "header", "H", nil, "Request header (repeatable, e.g. 'Authorization: Bearer x'); POST defaults to Content-Type: application/json")
	flags.DurationVar(&wf.timeout, "timeout", 30*time.Second, "Per-request timeout (0 disables)")
	flags.StringVar(&wf.itemsPath, "items-path", "", "JSON path in the response whose value gives the item count (e.g. '$.results')")
	flags.BoolVar(&wf.requestID, "request-id", false, "Send a unique X-Request-Id header with every request")

	return cmd
}

func newHTTPSuite(target string, wf workloadFlags, propagate bool) (*httpSuite, error) {
	method := strings.ToUpper(strings.TrimSpace(wf.method))
	switch method {
	case http.MethodGet:
		if wf.data != "" || wf.dataFile != "" {
			return nil, fmt.Errorf("a request body requires --method POST")
		}
	case http.MethodPost:
	default:
		return nil, fmt.Errorf("method %q is not supported (use GET or POST)", wf.method)
	}

	headers, err := httpclient.ParseHeaders(wf.headers)
	if err != nil {
		return nil, err
	}

	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
		Method:    method,
		URL:       target,
		Headers:   headers,
		Body:      wf.data,
		BodyFile:  wf.dataFile,
		RequestID: wf.requestID,
		Propagate: propagate,
	})
	if err != nil {
		return nil, err
	}

	return &httpSuite{
		builder:   builder,
		timeout:   wf.timeout,
		itemsPath: strings.TrimSpace(wf.itemsPath),
	}, nil
}
