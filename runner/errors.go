package runner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllWorkersFailed means no worker could build its state.
	ErrAllWorkersFailed = errors.New("all workers failed to start")
	// ErrNoActiveWorkers means every worker exited before any stop condition.
	ErrNoActiveWorkers = errors.New("no active workers left")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("runner already started")
)

// ConfigError reports invalid run options. The run never starts.
type ConfigError struct {
	issues []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.issues) == 0 {
		return "invalid run options"
	}
	return "invalid run options: " + strings.Join(e.issues, "; ")
}

// Issues returns a copy of the individual problems.
func (e *ConfigError) Issues() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.issues))
	copy(out, e.issues)
	return out
}

// FatalError aborts a run. The partial summary is still returned alongside it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("run aborted: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PanicError is the error recorded for an iteration or state constructor that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workload panic: %v", e.Value)
}

// ErrorKind groups every panic under one label in the summary.
func (e *PanicError) ErrorKind() string { return "Workload panic" }

// WorkerError tags an error with the worker and stage it came from.
type WorkerError struct {
	WorkerID uint32
	Stage    string
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d %s: %v", e.WorkerID, e.Stage, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
