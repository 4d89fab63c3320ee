package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// Document is a JSON object as stored by the document store.
// Use SortedKeys() for deterministic iteration.
type Document map[string]any

// Increment is a write-side sentinel: the field is increased by the given
// amount (a missing field counts as zero).
//
// Example: Document{"syncStatus.queuedActions": Increment(-2)}
type Increment int64

// deleteField is the type of the DeleteField sentinel.
type deleteField struct{}

// DeleteField is a write-side sentinel that removes the field.
var DeleteField = deleteField{}

// IsSentinel reports whether v is a write-side sentinel that cannot be stored.
func IsSentinel(v any) bool {
	switch v.(type) {
	case Increment, deleteField:
		return true
	}
	return false
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		return Document(val).Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Lookup resolves a dotted path ("syncStatus.lastSyncAt") against the document.
func (d Document) Lookup(path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		m, ok := AsDocument(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when absent or not a string.
func (d Document) String(path string) string {
	v, ok := d.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Int64 returns the integer at path.
func (d Document) Int64(path string) (int64, bool) {
	v, ok := d.Lookup(path)
	if !ok {
		return 0, false
	}
	return ToInt64(v)
}

// Time returns the timestamp stored at path.
func (d Document) Time(path string) (time.Time, bool) {
	v, ok := d.Lookup(path)
	if !ok {
		return time.Time{}, false
	}
	return TimeOf(v)
}

// Doc returns the nested document at path, or nil.
func (d Document) Doc(path string) Document {
	v, ok := d.Lookup(path)
	if !ok {
		return nil
	}
	m, _ := AsDocument(v)
	return m
}

// AsDocument converts a nested object value into a Document.
func AsDocument(v any) (Document, bool) {
	switch val := v.(type) {
	case Document:
		return val, true
	case map[string]any:
		return Document(val), true
	default:
		return nil, false
	}
}

// Time converts a wall-clock time to its stored representation.
func Time(t time.Time) int64 {
	return t.UnixNano()
}

// TimeOf converts a stored timestamp back to time.Time (UTC).
func TimeOf(v any) (time.Time, bool) {
	n, ok := ToInt64(v)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

// ToInt64 converts any integral numeric value to int64.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case Increment:
		return int64(val), true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// ToFloat64 converts any numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		n, ok := ToInt64(v)
		return float64(n), ok
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

// Compare orders two scalar values.
// Returns ok=false when the values are of incomparable kinds; callers treat
// that as "no match".
func Compare(a, b any) (int, bool) {
	switch {
	case a == nil || b == nil:
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	case isNumber(a) && isNumber(b):
		ai, aok := ToInt64(a)
		bi, bok := ToInt64(b)
		if aok && bok {
			return cmpOrdered(ai, bi), true
		}
		af, _ := ToFloat64(a)
		bf, _ := ToFloat64(b)
		return cmpOrdered(af, bf), true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}

	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// Decode parses stored JSON into a Document.
// Numbers are kept as json.Number to avoid float64 precision loss for
// values > 2^53 (nanosecond timestamps).
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc, ok := promoteMaps(raw).(Document)
	if !ok {
		return nil, fmt.Errorf("decode document: not a JSON object")
	}
	return doc, nil
}

// Normalize converts an arbitrary Go value into the value space produced by
// Decode (Document, []any, string, bool, json.Number, nil).
func Normalize(v any) (any, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return promoteMaps(out), nil
}

func promoteMaps(v any) any {
	switch val := v.(type) {
	case map[string]any:
		doc := make(Document, len(val))
		for k, elem := range val {
			doc[k] = promoteMaps(elem)
		}
		return doc
	case []any:
		for i, elem := range val {
			val[i] = promoteMaps(elem)
		}
		return val
	default:
		return v
	}
}
