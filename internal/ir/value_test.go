package ir

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KeepsLargeIntegers(t *testing.T) {
	doc, err := Decode([]byte(`{"enqueuedAt":1767225600123456789,"nested":{"n":1}}`))
	require.NoError(t, err)

	n, ok := doc.Int64("enqueuedAt")
	require.True(t, ok)
	assert.Equal(t, int64(1767225600123456789), n)

	_, isDoc := doc["nested"].(Document)
	assert.True(t, isDoc, "nested objects decode as Document")
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = Decode([]byte(`null`))
	require.Error(t, err)
}

func TestDocument_Lookup(t *testing.T) {
	doc := Document{
		"syncStatus": map[string]any{
			"queuedActions": json.Number("3"),
		},
		"name": "u",
	}

	v, ok := doc.Lookup("syncStatus.queuedActions")
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), v)

	_, ok = doc.Lookup("syncStatus.missing")
	assert.False(t, ok)

	_, ok = doc.Lookup("name.inner")
	assert.False(t, ok, "cannot descend into a string")

	assert.Equal(t, "u", doc.String("name"))
	assert.Equal(t, "", doc.String("syncStatus"))
}

func TestDocument_CloneIsDeep(t *testing.T) {
	orig := Document{"prefs": map[string]any{"units": "metric"}, "list": []any{"a"}}
	clone := orig.Clone()

	clone.Doc("prefs")["units"] = "imperial"
	clone["list"].([]any)[0] = "b"

	assert.Equal(t, "metric", orig.Doc("prefs")["units"])
	assert.Equal(t, "a", orig["list"].([]any)[0])
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC)
	stored := Time(now)

	back, ok := TimeOf(json.Number(strconv.FormatInt(stored, 10)))
	require.True(t, ok)
	assert.True(t, now.Equal(back))
	assert.Equal(t, time.UTC, back.Location())
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
		ok   bool
	}{
		{"ints", 1, int64(2), -1, true},
		{"json number vs int", json.Number("5"), 5, 0, true},
		{"float vs int", 2.5, 2, 1, true},
		{"strings", "b", "a", 1, true},
		{"bools", false, true, -1, true},
		{"nil nil", nil, nil, 0, true},
		{"string vs int", "1", 1, 0, false},
		{"nil vs value", nil, "x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, Document{"a": "b"}, v)

	v, err = Normalize(3)
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), v)
}
