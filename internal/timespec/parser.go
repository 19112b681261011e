// Package timespec parses the --since and --until values accepted by the CLI.
package timespec

import (
	"fmt"
	"strconv"
	"time"
)

// Parse parses a time expression into a Unix timestamp in milliseconds,
// relative to the current time. See ParseAt.
func Parse(expr string) (int64, error) {
	return ParseAt(expr, time.Now())
}

// ParseAt parses a time expression relative to now. Accepted forms:
//   - Go duration, meaning that long ago: "1h", "30m", "1h30m"
//   - RFC3339 timestamp: "2026-10-29T13:00:00Z"
//   - a raw millisecond timestamp as printed in JSON output: "1761742800000"
func ParseAt(expr string, now time.Time) (int64, error) {
	if expr == "" {
		return 0, fmt.Errorf("empty time expression")
	}

	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(expr); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("invalid time expression: %s (duration must not be negative)", expr)
		}
		return now.Add(-d).UnixMilli(), nil
	}

	if ms, err := strconv.ParseInt(expr, 10, 64); err == nil && ms > 0 {
		return ms, nil
	}

	return 0, fmt.Errorf("invalid time expression: %s (use duration like '1h30m', RFC3339 like '2026-10-29T13:00:00Z', or epoch milliseconds)", expr)
}

// ParseRange parses both --since and --until flags into a time range.
// Zero values mean that end is unbounded. since must be before until when
// both are given.
func ParseRange(since, until string) (int64, int64, error) {
	now := time.Now()
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		if sinceMS, err = ParseAt(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if untilMS, err = ParseAt(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}
