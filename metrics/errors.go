package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/0x-wen/rlt/bench"
)

const (
	unknownKind    = "Unknown error"
	maxKindMessage = 60
)

// KindedError is implemented by errors that name their own kind in ErrorKinds.
type KindedError interface {
	ErrorKind() string
}

var sentinelKinds = []struct {
	err  error
	kind string
}{
	{context.DeadlineExceeded, "Context deadline exceeded"},
	{context.Canceled, "Context canceled"},
	{io.ErrUnexpectedEOF, "Unexpected EOF"},
	{io.EOF, "EOF"},
}

// ErrorKind returns a short, low-cardinality label for an iteration error.
//
// Errors marked with bench.ErrStateUnusable are labelled by their cause.
// Errors implementing KindedError name themselves; well-known sentinels and
// network failures get fixed labels. Plain errors.New values are labelled by
// their message, anything else by its type.
func ErrorKind(err error) string {
	if err == nil {
		return unknownKind
	}
	if errors.Is(err, bench.ErrStateUnusable) {
		if cause := joinedWith(err, bench.ErrStateUnusable); cause != nil {
			return "State unusable: " + ErrorKind(cause)
		}
		return "State unusable"
	}

	var kinded KindedError
	if errors.As(err, &kinded) {
		if kind := kinded.ErrorKind(); kind != "" {
			return kind
		}
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op != "" {
		return "Network " + opErr.Op + " error"
	}

	cause := rootCause(err)
	typeName := fmt.Sprintf("%T", cause)
	if typeName == "*errors.errorString" {
		return truncateRunes(cause.Error(), maxKindMessage)
	}
	return strings.TrimPrefix(typeName, "*")
}

// joinedWith returns the error wrapped next to target by a multi-%w wrapper.
func joinedWith(err, target error) error {
	for err != nil {
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			errs := multi.Unwrap()
			for _, e := range errs {
				if !errors.Is(e, target) {
					return e
				}
			}
			for _, e := range errs {
				if e != target {
					return joinedWith(e, target)
				}
			}
			return nil
		}
		err = errors.Unwrap(err)
	}
	return nil
}

// rootCause follows the wrap chain; multi-wrappers continue with their last error.
func rootCause(err error) error {
	for {
		var next error
		switch e := err.(type) {
		case interface{ Unwrap() []error }:
			if errs := e.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		case interface{ Unwrap() error }:
			next = e.Unwrap()
		}
		if next == nil {
			return err
		}
		err = next
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
