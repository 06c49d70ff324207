// Package threshold evaluates pass/fail assertions against a run summary.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/0x-wen/rlt/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "latency", "errors", "iterations"
	Aggregate string  // e.g., "p95", "p99", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against a run summary.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, summary))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, summary metrics.Summary) Result {
	read, err := accessor(t.Metric, t.Aggregate)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	actual := read(summary)
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

type summaryValue func(metrics.Summary) float64

// summaryMetrics lists every metric:aggregate pair a threshold may name.
// Latency values are milliseconds; rates are per second of the measured window.
var summaryMetrics = map[string]map[string]summaryValue{
	"latency": {
		"p50":  func(s metrics.Summary) float64 { return s.Latency.P50Ms },
		"p90":  func(s metrics.Summary) float64 { return s.Latency.P90Ms },
		"p95":  func(s metrics.Summary) float64 { return s.Latency.P95Ms },
		"p99":  func(s metrics.Summary) float64 { return s.Latency.P99Ms },
		"p999": func(s metrics.Summary) float64 { return s.Latency.P999Ms },
		"avg":  func(s metrics.Summary) float64 { return s.Latency.MeanMs },
		"mean": func(s metrics.Summary) float64 { return s.Latency.MeanMs },
		"min":  func(s metrics.Summary) float64 { return s.Latency.MinMs },
		"max":  func(s metrics.Summary) float64 { return s.Latency.MaxMs },
	},
	"errors": {
		"count": func(s metrics.Summary) float64 { return float64(s.Errors) },
		"rate":  func(s metrics.Summary) float64 { return s.ErrorRate },
	},
	"iterations": {
		"count": func(s metrics.Summary) float64 { return float64(s.Iterations) },
		"rate":  func(s metrics.Summary) float64 { return s.IterationsPerSec },
	},
	"items": {
		"count": func(s metrics.Summary) float64 { return float64(s.Items) },
		"rate":  func(s metrics.Summary) float64 { return s.ItemsPerSec },
	},
	"bytes": {
		"count": func(s metrics.Summary) float64 { return float64(s.Bytes) },
		"rate":  func(s metrics.Summary) float64 { return s.BytesPerSec },
	},
}

var validOperators = []string{"<", "<=", ">", ">=", "=="}

func accessor(metric, aggregate string) (summaryValue, error) {
	aggregates, ok := summaryMetrics[metric]
	if !ok {
		return nil, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(sortedKeys(summaryMetrics), ", "))
	}
	read, ok := aggregates[aggregate]
	if !ok {
		return nil, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(sortedKeys(aggregates), ", "))
	}
	return read, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Parse parses a threshold string into a Threshold struct. The metric and
// aggregate must form a supported pair, so mistakes surface before a run starts.
// Supported formats:
// - "latency:p95 < 500"      (latency percentile in ms)
// - "latency:avg < 200"      (mean latency in ms)
// - "errors:rate < 0.01"     (failed iterations as a fraction)
// - "errors:count < 10"      (failed iterations)
// - "iterations:rate > 100"  (iterations per second)
// - "items:rate > 1000"      (items per second)
// - "bytes:count > 1048576"  (bytes transferred)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p95 < 500')", s)
	}
	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}
	if _, err := accessor(metric, aggregate); err != nil {
		return Threshold{}, err
	}
	if !slices.Contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected+epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected-epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
