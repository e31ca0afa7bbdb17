// Package keypool parses and supplies the upstream credential pool.
package keypool

import (
	"errors"
	"os"
	"strings"
)

// ErrNoCredentials indicates the credential pool is empty after parsing.
var ErrNoCredentials = errors.New("no api keys configured")

// Source supplies a snapshot of the credential pool. Callers must not mutate the returned slice.
type Source interface {
	Keys() ([]string, error)
}

// Parse splits a comma-separated credential list, trimming entries and dropping empty ones.
func Parse(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if key := strings.TrimSpace(part); key != "" {
			out = append(out, key)
		}
	}
	return out
}

// EnvSource reads the pool from an environment variable on every call.
type EnvSource struct {
	Name string
}

// Keys implements Source.
func (s EnvSource) Keys() ([]string, error) {
	keys := Parse(os.Getenv(s.Name))
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	return keys, nil
}

// Static is a fixed credential pool.
type Static []string

// Keys implements Source.
func (s Static) Keys() ([]string, error) {
	if len(s) == 0 {
		return nil, ErrNoCredentials
	}
	return s, nil
}
