// Package timeparse parses the timestamp shapes returned by the platform APIs.
package timeparse

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Epoch is the Unix epoch in UTC.
var Epoch = time.Unix(0, 0).UTC()

// millisThreshold separates epoch seconds from epoch milliseconds.
const millisThreshold = 1e11

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse interprets v as a timestamp. Strings are tried as ISO 8601 variants and
// then as numbers; numbers are epoch seconds, or milliseconds when large.
// Zone-less strings are taken as UTC.
func Parse(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("timestamp is null")
	case string:
		return parseString(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid numeric timestamp %q: %w", t, err)
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(t)
	case int64:
		return fromEpoch(float64(t))
	case int:
		return fromEpoch(float64(t))
	case time.Time:
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid numeric timestamp %v", f)
	}
	if math.Abs(f) >= millisThreshold {
		f = f / 1000
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// Format renders t the way the platform APIs expect it in query parameters.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
