package main

import (
	"fmt"
	"strings"
	"time"
)

// parseChannels splits a comma-separated --channels flag value.
func parseChannels(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("%w: --channels is required", errUsage)
	}
	var out []string
	for _, c := range strings.Split(v, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: --channels is required", errUsage)
	}
	return out, nil
}

// parseTimestamp accepts either a bare date (2026-01-02) or a full RFC3339
// timestamp, always returned in UTC.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp flag is required", errUsage)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: could not parse timestamp %q (want RFC3339 or YYYY-MM-DD)", errUsage, v)
}
