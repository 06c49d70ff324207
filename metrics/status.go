package metrics

import (
	"sort"

	"github.com/0x-wen/rlt/bench"
)

// StatusBucket is the number of iterations that ended with one status.
type StatusBucket struct {
	Kind  string `json:"kind" yaml:"kind"`
	Code  int64  `json:"code" yaml:"code"`
	Error bool   `json:"error" yaml:"error"`
	Count int64  `json:"count" yaml:"count"`
}

// FlattenStatuses converts a status->count map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by kind/code for stability.
func FlattenStatuses(counts map[bench.Status]int64) []StatusBucket {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(counts))
	for status, count := range counts {
		rows = append(rows, StatusBucket{
			Kind:  status.Kind.String(),
			Code:  status.Code,
			Error: status.IsError(),
			Count: count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Kind == rows[j].Kind {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// ErrorBuckets returns only the failure rows of buckets.
func ErrorBuckets(buckets []StatusBucket) []StatusBucket {
	var out []StatusBucket
	for _, b := range buckets {
		if b.Error {
			out = append(out, b)
		}
	}
	return out
}
