package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var keyFolder = strings.NewReplacer("_", "", "-", "", " ", "")

// settingKey folds a config file key so that rate_scope, rate-scope and
// rateScope name the same setting.
func settingKey(key string) string {
	return strings.ToLower(keyFolder.Replace(strings.TrimSpace(key)))
}

// fileSettings reads one table of a config file. The first conversion error
// is kept and every later read is skipped.
type fileSettings struct {
	prefix string
	vals   map[string]any
	err    error
}

func newFileSettings(prefix string, raw any) (*fileSettings, error) {
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		if prefix == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	vals := make(map[string]any, len(m))
	for k, v := range m {
		vals[settingKey(k)] = v
	}
	return &fileSettings{prefix: prefix, vals: vals}, nil
}

func (s *fileSettings) name(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "." + key
}

func (s *fileSettings) lookup(key string) (any, bool) {
	if s.err != nil {
		return nil, false
	}
	v, ok := s.vals[settingKey(key)]
	return v, ok
}

func (s *fileSettings) fail(key string, err error) {
	if s.err == nil {
		s.err = fmt.Errorf("%s: %w", s.name(key), err)
	}
}

// setting converts the value under key into dst and reports whether it was set.
func setting[T any](s *fileSettings, key string, dst *T, conv func(any) (T, error)) bool {
	raw, ok := s.lookup(key)
	if !ok {
		return false
	}
	if str, isStr := raw.(string); isStr {
		raw = strings.TrimSpace(str)
	}
	v, err := conv(raw)
	if err != nil {
		s.fail(key, err)
		return false
	}
	*dst = v
	return true
}

// section hands the nested table under key to fn.
func (s *fileSettings) section(key string, fn func(*fileSettings)) {
	raw, ok := s.lookup(key)
	if !ok || raw == nil {
		return
	}
	child, err := newFileSettings(s.name(key), raw)
	if err != nil {
		s.err = err
		return
	}
	fn(child)
	s.err = child.err
}

// list hands each table of the list under key to fn.
func (s *fileSettings) list(key string, fn func(*fileSettings)) {
	raw, ok := s.lookup(key)
	if !ok || raw == nil {
		return
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		s.fail(key, err)
		return
	}
	for i, item := range items {
		child, err := newFileSettings(fmt.Sprintf("%s[%d]", s.name(key), i), item)
		if err != nil {
			s.err = err
			return
		}
		fn(child)
		if child.err != nil {
			s.err = child.err
			return
		}
	}
}

// fileDuration reads strings as Go durations and bare numbers as seconds.
func fileDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	}
	secs, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// fileStrings keeps a lone string whole; thresholds contain spaces.
func fileStrings(raw any) ([]string, error) {
	if str, ok := raw.(string); ok {
		if str == "" {
			return nil, nil
		}
		return []string{str}, nil
	}
	return cast.ToStringSliceE(raw)
}

func lowered[T ~string](raw any) (T, error) {
	str, err := cast.ToStringE(raw)
	return T(strings.ToLower(str)), err
}
