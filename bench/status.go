package bench

import (
	"fmt"
	"strconv"
)

// StatusKind classifies an iteration outcome.
type StatusKind uint8

const (
	StatusNone StatusKind = iota
	StatusSuccess
	StatusClientError
	StatusServerError
	StatusFailure
)

var kindNames = [...]string{
	StatusNone:        "none",
	StatusSuccess:     "success",
	StatusClientError: "client_error",
	StatusServerError: "server_error",
	StatusFailure:     "error",
}

func (k StatusKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Status is a workload-defined outcome: a kind plus a code whose meaning belongs
// to the workload (an HTTP status code for HTTP workloads). The zero value means
// no status applies.
type Status struct {
	Kind StatusKind
	Code int64
}

// StatusOK is a success without a code.
func StatusOK() Status { return Status{Kind: StatusSuccess} }

// StatusSuccessCode is a success carrying code.
func StatusSuccessCode(code int64) Status { return Status{Kind: StatusSuccess, Code: code} }

// StatusError is a generic failure carrying code.
func StatusError(code int64) Status { return Status{Kind: StatusFailure, Code: code} }

// StatusFromHTTP classifies an HTTP response code.
func StatusFromHTTP(code int) Status {
	switch {
	case code >= 100 && code < 400:
		return Status{Kind: StatusSuccess, Code: int64(code)}
	case code >= 400 && code < 500:
		return Status{Kind: StatusClientError, Code: int64(code)}
	case code >= 500 && code < 600:
		return Status{Kind: StatusServerError, Code: int64(code)}
	default:
		return Status{Kind: StatusFailure, Code: int64(code)}
	}
}

// IsError reports whether the status falls in the failure range.
func (s Status) IsError() bool {
	return s.Kind != StatusSuccess && s.Kind != StatusNone
}

func (s Status) String() string {
	if s.Kind == StatusNone && s.Code == 0 {
		return "none"
	}
	return fmt.Sprintf("%s %d", s.Kind, s.Code)
}
