package util

import (
	"strconv"
	"time"
)

// millisThreshold separates unix seconds from unix milliseconds. Second
// values above it lie past the year 5000.
const millisThreshold = 1e11

// UnixAuto converts a unix timestamp in seconds or milliseconds to UTC.
func UnixAuto(v int64) time.Time {
	if v > millisThreshold {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

// ParseTime accepts RFC3339 (with or without fractional seconds) and unix
// seconds or milliseconds. The result is UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return UnixAuto(ts), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
