package docstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRecognisedForms(t *testing.T) {
	at := time.Date(2024, 3, 9, 10, 30, 0, 500, time.FixedZone("AEST", 10*3600))
	want := at.UTC().Format(time.RFC3339Nano)

	cases := map[string]any{
		"time":         at,
		"pointer":      &at,
		"native":       TimestampFromTime(at),
		"plain map":    map[string]any{"seconds": float64(at.Unix()), "nanoseconds": float64(500)},
		"prefixed map": map[string]any{"_seconds": at.Unix(), "_nanoseconds": 500},
		"json numbers": map[string]any{"_seconds": json.Number(formatInt(at.Unix())), "_nanoseconds": json.Number("500")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, Normalize(in))
		})
	}
}

func TestNormalizeRecursesWithoutMutating(t *testing.T) {
	ts := TimestampFromTime(time.Unix(1700000000, 0))
	in := map[string]any{
		"title":     "Leaking gutter",
		"createdAt": ts,
		"statusHistory": []any{
			map[string]any{"status": "suggested", "changedAt": map[string]any{"_seconds": 1700000000, "_nanoseconds": 0}},
		},
		"nested": map[string]any{"deep": map[string]any{"when": ts}},
	}

	out := Normalize(in).(map[string]any)

	assert.Equal(t, "2023-11-14T22:13:20Z", out["createdAt"])
	entry := out["statusHistory"].([]any)[0].(map[string]any)
	assert.Equal(t, "2023-11-14T22:13:20Z", entry["changedAt"])
	assert.Equal(t, "suggested", entry["status"])
	assert.Equal(t, "2023-11-14T22:13:20Z", out["nested"].(map[string]any)["deep"].(map[string]any)["when"])

	assert.Equal(t, ts, in["createdAt"], "input must not be modified")
	inEntry := in["statusHistory"].([]any)[0].(map[string]any)
	assert.IsType(t, map[string]any{}, inEntry["changedAt"])
}

func TestNormalizeFailsOpen(t *testing.T) {
	cases := []any{
		"plain string",
		42.0,
		true,
		map[string]any{"seconds": "soon", "nanoseconds": 0},
		map[string]any{"seconds": 1, "nanoseconds": 0, "extra": 1},
		map[string]any{"seconds": 1.5, "nanoseconds": 0},
		map[string]any{"_seconds": 1},
		[]string{"a", "b"},
	}
	for _, in := range cases {
		assert.Equal(t, in, Normalize(in))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := map[string]any{
		"a": time.Unix(1, 0),
		"b": []any{TimestampFromTime(time.Unix(2, 0)), "x"},
		"c": map[string]any{"seconds": 3, "nanoseconds": 0},
	}
	once := Normalize(in)
	twice := Normalize(once)
	require.Equal(t, once, twice)
}

func formatInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
