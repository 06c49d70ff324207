package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultContentType is sent with POST requests that set no Content-Type.
const DefaultContentType = "application/json"

// Payload is a request body read once before the run and replayed verbatim by
// every iteration, so no iteration pays for file I/O.
type Payload struct {
	data []byte
}

// LoadPayload takes the body inline or from bodyFile, never both.
func LoadPayload(body, bodyFile string) (Payload, error) {
	bodyFile = strings.TrimSpace(bodyFile)
	switch {
	case body != "" && bodyFile != "":
		return Payload{}, errors.New("body and body file cannot both be provided")
	case bodyFile != "":
		info, err := os.Stat(bodyFile)
		if err != nil {
			return Payload{}, fmt.Errorf("body file: %w", err)
		}
		if info.IsDir() {
			return Payload{}, fmt.Errorf("body file %q is a directory", bodyFile)
		}
		data, err := os.ReadFile(bodyFile)
		if err != nil {
			return Payload{}, fmt.Errorf("body file: %w", err)
		}
		return Payload{data: data}, nil
	default:
		return Payload{data: []byte(body)}, nil
	}
}

// Len is the body size in bytes.
func (p Payload) Len() int { return len(p.data) }

// reader returns nil for an empty payload so GET requests carry no body.
func (p Payload) reader() io.Reader {
	if len(p.data) == 0 {
		return nil
	}
	return bytes.NewReader(p.data)
}
