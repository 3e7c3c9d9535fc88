package docstore

import (
	"encoding/json"
	"math"
	"time"
)

// dater is any value exposing a zero-argument date conversion, such as Timestamp.
type dater interface {
	ToDate() time.Time
}

// Normalize returns a copy of v in which every recognised timestamp is
// replaced by an RFC 3339 string in UTC. Recognised forms are time.Time,
// values with a ToDate() time.Time method, and maps holding exactly
// seconds/nanoseconds or _seconds/_nanoseconds numbers. Maps and slices are
// copied, never modified. Anything unrecognised is returned as is, so
// normalising an already normalised value is a no-op.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return formatTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return formatTime(*val)
	case dater:
		return formatTime(val.ToDate())
	case map[string]any:
		if t, ok := timestampFromMap(val); ok {
			return formatTime(t)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// NormalizeFields is Normalize for a document's top-level field map.
func NormalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = Normalize(v)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timestampFromMap(m map[string]any) (time.Time, bool) {
	if len(m) != 2 {
		return time.Time{}, false
	}
	for _, keys := range [][2]string{{"seconds", "nanoseconds"}, {"_seconds", "_nanoseconds"}} {
		rawSec, okSec := m[keys[0]]
		rawNano, okNano := m[keys[1]]
		if !okSec || !okNano {
			continue
		}
		sec, ok := asInt64(rawSec)
		if !ok {
			return time.Time{}, false
		}
		nano, ok := asInt64(rawNano)
		if !ok || nano < 0 || nano >= int64(time.Second) {
			return time.Time{}, false
		}
		return time.Unix(sec, nano), true
	}
	return time.Time{}, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
