package httpclient

import (
	"bytes"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

const maxItemsBodySize = 8 * 1024 * 1024

// ReadResponse drains and closes resp.Body. It returns the number of body bytes
// read and, when itemsPath is set, the item count found at that JSON path.
func ReadResponse(resp *http.Response, itemsPath string) (uint64, uint64, error) {
	defer resp.Body.Close()

	if itemsPath == "" {
		n, err := io.Copy(io.Discard, resp.Body)
		return uint64(n), 0, err
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxItemsBodySize))
	if err != nil {
		return uint64(n), 0, err
	}
	rest, err := io.Copy(io.Discard, resp.Body)
	return uint64(n + rest), CountItems(buf.Bytes(), itemsPath), err
}

// CountItems interprets the value at path: an array counts its elements, a
// number is taken as the count, any other present value counts as one.
func CountItems(body []byte, path string) uint64 {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}

	result := gjson.GetBytes(body, path)
	switch {
	case !result.Exists():
		return 0
	case result.IsArray():
		return uint64(len(result.Array()))
	case result.Type == gjson.Number:
		if result.Num < 0 {
			return 0
		}
		return result.Uint()
	default:
		return 1
	}
}
