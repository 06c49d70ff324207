package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/0x-wen/rlt/runner"
)

type writerFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFailureLogger returns a runner.FailureLogger that writes one line per
// failure to w, or to stderr when w is nil.
func NewFailureLogger(w io.Writer) runner.FailureLogger {
	if w == nil {
		w = os.Stderr
	}
	return &writerFailureLogger{w: w}
}

func (l *writerFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[rlt] iteration failed: %v\n", err)
}
