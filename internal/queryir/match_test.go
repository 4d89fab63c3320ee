package queryir

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/syncq/internal/ir"
)

func TestMatch(t *testing.T) {
	doc := ir.Document{
		"userId":     "user-1",
		"status":     "pending",
		"retryCount": json.Number("2"),
		"meta":       ir.Document{"source": "offline_sync"},
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil matches all", nil, true},
		{"equals string", Eq("status", "pending"), true},
		{"equals miss", Eq("status", "failed"), false},
		{"equals number across types", Eq("retryCount", 2), true},
		{"nested path", Eq("meta.source", "offline_sync"), true},
		{"missing field never matches", Eq("lastError", "x"), false},
		{"kind mismatch never matches", Eq("retryCount", "2"), false},
		{"lt", Compare{Field: "retryCount", Op: OpLt, Value: 3}, true},
		{"lte equal", Compare{Field: "retryCount", Op: OpLte, Value: 2}, true},
		{"gt", Compare{Field: "retryCount", Op: OpGt, Value: 2}, false},
		{"gte", Compare{Field: "retryCount", Op: OpGte, Value: 2.0}, true},
		{"and", All(Eq("userId", "user-1"), Eq("status", "pending")), true},
		{"and one false", All(Eq("userId", "user-1"), Eq("status", "failed")), false},
		{"empty and", All(), true},
		{"pointer", &Equals{Field: "userId", Value: "user-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, doc))
		})
	}
}

func TestCompareDocs_OrderKeys(t *testing.T) {
	type row struct {
		id  string
		doc ir.Document
	}
	rows := []row{
		{"c", ir.Document{"priority": 1, "enqueuedAt": 10}},
		{"a", ir.Document{"priority": 5, "enqueuedAt": 30}},
		{"b", ir.Document{"priority": 5, "enqueuedAt": 20}},
		{"d", ir.Document{"priority": 1, "enqueuedAt": 10}},
	}
	orders := []Order{Desc("priority"), Asc("enqueuedAt")}

	slices.SortFunc(rows, func(x, y row) int {
		if c := CompareDocs(orders, x.doc, y.doc); c != 0 {
			return c
		}
		return strings.Compare(x.id, y.id)
	})

	var ids []string
	for _, r := range rows {
		ids = append(ids, r.id)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
}

func TestCompareDocs_MissingFieldSortsFirst(t *testing.T) {
	withField := ir.Document{"completedAt": 5}
	without := ir.Document{}

	assert.Equal(t, -1, CompareDocs([]Order{Asc("completedAt")}, without, withField))
	assert.Equal(t, 1, CompareDocs([]Order{Desc("completedAt")}, without, withField))
	assert.Equal(t, 0, CompareDocs([]Order{Asc("completedAt")}, without, without))
}
