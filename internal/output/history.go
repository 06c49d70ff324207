package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/0x-wen/rlt/internal/threshold"
	"github.com/0x-wen/rlt/metrics"
)

// HistoryEntry is one line of a run history file.
type HistoryEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Workload   string             `json:"workload,omitempty"`
	Passed     bool               `json:"passed"`
	Summary    metrics.Summary    `json:"summary"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

func historyLock(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// AppendHistory appends entry as a JSON line to path. Concurrent writers from
// other processes are serialized through a lock file next to path.
func AppendHistory(path string, entry HistoryEntry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history dir: %w", err)
		}
	}

	lock := historyLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock history %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write history %s: %w", path, err)
	}
	return f.Close()
}

// ReadHistory returns the entries of a history file in the order they were
// written. A missing file yields no entries.
func ReadHistory(path string) ([]HistoryEntry, error) {
	lock := historyLock(path)
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock history %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("history %s line %d: %w", path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}
	return entries, nil
}

// PreviousRun returns the latest entry recorded for workload, if any.
func PreviousRun(path, workload string) (HistoryEntry, bool, error) {
	entries, err := ReadHistory(path)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Workload == workload {
			return entries[i], true, nil
		}
	}
	return HistoryEntry{}, false, nil
}

// PrintComparison reports how s moved against the previous run of the same workload.
func PrintComparison(w io.Writer, prev HistoryEntry, s metrics.Summary) {
	fmt.Fprintf(w, "\nCompared to run %s (%s):\n", prev.Summary.RunID, prev.Timestamp.Format(time.RFC3339))
	p := prev.Summary
	line(w, "  Iterations/sec", "%.2f -> %.2f (%s)", p.IterationsPerSec, s.IterationsPerSec, change(p.IterationsPerSec, s.IterationsPerSec))
	line(w, "  Error rate", "%.2f%% -> %.2f%%", p.ErrorRate*100, s.ErrorRate*100)
	line(w, "  P99", "%s -> %s (%s)", p.Latency.P99, s.Latency.P99, change(float64(p.Latency.P99), float64(s.Latency.P99)))
}

func change(before, after float64) string {
	if before == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", (after-before)/before*100)
}
