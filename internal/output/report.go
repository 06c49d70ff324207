package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/0x-wen/rlt/internal/threshold"
	"github.com/0x-wen/rlt/metrics"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Width(19)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
)

// Report is the structured form of a finished run.
type Report struct {
	metrics.Summary `yaml:",inline"`
	Thresholds      []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

func line(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render(label+":"), fmt.Sprintf(format, args...))
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s metrics.Summary, results []threshold.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("--- Load Test Results ---"))
	line(w, "Run ID", "%s", s.RunID)
	line(w, "Iterations", "%d", s.Iterations)
	line(w, "Items", "%d", s.Items)
	line(w, "Bytes", "%d", s.Bytes)
	errLine := fmt.Sprintf("%d (%.2f%%)", s.Errors, s.ErrorRate*100)
	if s.Errors > 0 {
		errLine = errorStyle.Render(errLine)
	}
	line(w, "Errors", "%s", errLine)
	line(w, "Duration", "%s", s.Duration)
	line(w, "Iterations/sec", "%.2f", s.IterationsPerSec)
	line(w, "Items/sec", "%.2f", s.ItemsPerSec)
	line(w, "Bytes/sec", "%.2f", s.BytesPerSec)
	if s.Cancelled {
		fmt.Fprintln(w, errorStyle.Render("Run was cancelled before its stop condition."))
	}

	fmt.Fprintln(w, "\nLatency:")
	line(w, "  Min", "%s", s.Latency.Min)
	line(w, "  Max", "%s", s.Latency.Max)
	line(w, "  Mean", "%s", s.Latency.Mean)
	line(w, "  StdDev", "%s", s.Latency.StdDev)
	line(w, "  P50", "%s", s.Latency.P50)
	line(w, "  P90", "%s", s.Latency.P90)
	line(w, "  P95", "%s", s.Latency.P95)
	line(w, "  P99", "%s", s.Latency.P99)
	line(w, "  P99.9", "%s", s.Latency.P999)

	if len(s.Statuses) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, s.Statuses, "  ")
	}

	if len(s.ErrorKinds) > 0 {
		fmt.Fprintln(w, "\nError Kinds:")
		kinds := make([]string, 0, len(s.ErrorKinds))
		for kind := range s.ErrorKinds {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool {
			if s.ErrorKinds[kinds[i]] == s.ErrorKinds[kinds[j]] {
				return kinds[i] < kinds[j]
			}
			return s.ErrorKinds[kinds[i]] > s.ErrorKinds[kinds[j]]
		})
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, s.ErrorKinds[kind])
		}
	}

	if len(s.Workers) > 0 {
		fmt.Fprintln(w, "\nWorkers:")
		for _, ws := range s.Workers {
			share := 0.0
			if s.Iterations > 0 {
				share = float64(ws.Iterations) / float64(s.Iterations) * 100
			}
			suffix := ""
			if ws.Faulted {
				suffix = " " + errorStyle.Render("(faulted)")
			}
			fmt.Fprintf(w, "  - #%d: iterations=%d (%.1f%%), busy=%s%s\n", ws.ID, ws.Iterations, share, ws.Busy, suffix)
		}
	}

	if len(s.WorkerFaults) > 0 {
		fmt.Fprintln(w, "\nWorker Faults:")
		if n := s.StartupFailures(); n > 0 {
			line(w, "  Startup failures", "%d", n)
		}
		for _, f := range s.WorkerFaults {
			fmt.Fprintf(w, "  - #%d %s: %s\n", f.WorkerID, f.Stage, f.Error)
		}
	}

	if len(results) > 0 {
		PrintThresholds(w, results)
	}
}

// PrintThresholds outputs one line per threshold result.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", passed, len(results))
	for _, r := range results {
		msg := r.Message
		if r.Pass {
			msg = passStyle.Render(msg)
		} else {
			msg = errorStyle.Render(msg)
		}
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s metrics.Summary, results []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Summary: s, Thresholds: results})
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, s metrics.Summary, results []threshold.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Report{Summary: s, Thresholds: results}); err != nil {
		return err
	}
	return enc.Close()
}

func writeStatusBuckets(w io.Writer, buckets []metrics.StatusBucket, indent string) {
	if len(buckets) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range buckets {
		label := fmt.Sprintf("%s %d", strings.ToUpper(row.Kind), row.Code)
		if row.Error {
			label = errorStyle.Render(label)
		}
		fmt.Fprintf(w, "%s%s: %d\n", indent, label, row.Count)
	}
}
