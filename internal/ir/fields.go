package ir

import (
	"fmt"
	"strings"
)

// ApplyFields returns a copy of doc with fields written into it.
//
// Keys may be dotted paths; intermediate documents are created as needed.
// Increment adds to the current numeric value (missing counts as zero) and
// DeleteField removes the addressed field. Keys are applied in canonical
// order so "a" is always written before "a.b".
func ApplyFields(doc Document, fields Document) (Document, error) {
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}
	for _, key := range fields.SortedKeys() {
		if err := applyField(out, key, fields[key]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyField(doc Document, path string, value any) error {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid field path %q", path)
		}
	}

	parent := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := AsDocument(parent[p])
		if !ok {
			if _, isDelete := value.(deleteField); isDelete {
				return nil
			}
			next = Document{}
		}
		// Always store nested objects as Document so later writes mutate the copy.
		parent[p] = next
		parent = next
	}

	leaf := parts[len(parts)-1]
	switch val := value.(type) {
	case deleteField:
		delete(parent, leaf)
	case Increment:
		sum, err := addNumber(parent[leaf], int64(val))
		if err != nil {
			return fmt.Errorf("increment %q: %w", path, err)
		}
		parent[leaf] = sum
	default:
		parent[leaf] = cloneValue(value)
	}
	return nil
}

func addNumber(current any, delta int64) (any, error) {
	if current == nil {
		return delta, nil
	}
	if n, ok := ToInt64(current); ok {
		return n + delta, nil
	}
	if f, ok := ToFloat64(current); ok {
		return f + float64(delta), nil
	}
	return nil, fmt.Errorf("current value %T is not numeric", current)
}
