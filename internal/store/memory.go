package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queryir"
)

// MemoryStore keeps canonical JSON per document in process memory.
// Reads decode a fresh copy so callers can never alias stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

// Get implements Adapter.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (ir.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return ir.Decode(data)
}

// Query implements Adapter.
func (s *MemoryStore) Query(ctx context.Context, q queryir.Query) ([]Snapshot, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := s.scan(q)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b Snapshot) int {
		if c := queryir.CompareDocs(q.OrderBy, a.Data, b.Data); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// Count implements Adapter.
func (s *MemoryStore) Count(ctx context.Context, q queryir.Query) (int, error) {
	if err := queryir.Validate(q); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	matches, err := s.scan(q)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (s *MemoryStore) scan(q queryir.Query) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	var out []Snapshot
	for id, data := range s.collections[q.Collection] {
		doc, err := ir.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("query %s/%s: %w", q.Collection, id, err)
		}
		if queryir.Match(q.Filter, doc) {
			out = append(out, Snapshot{ID: id, Data: doc})
		}
	}
	return out, nil
}

// Commit implements Adapter. Ops are staged against a private view of the
// touched documents and published only if every op succeeds.
func (s *MemoryStore) Commit(ctx context.Context, b *Batch) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CommitResult{}, errClosed
	}

	type staged struct {
		data    []byte
		deleted bool
	}
	view := make(map[Ref]*staged)
	var order []Ref
	var result CommitResult

	for _, op := range b.Ops() {
		st, seen := view[op.Ref]
		var current ir.Document
		exists := false
		switch {
		case seen && !st.deleted:
			current, _ = ir.Decode(st.data)
			exists = true
		case !seen:
			if data, ok := s.collections[op.Ref.Collection][op.Ref.ID]; ok {
				doc, err := ir.Decode(data)
				if err != nil {
					return CommitResult{}, fmt.Errorf("commit: read %s: %w", op.Ref, err)
				}
				current, exists = doc, true
			}
		}

		next, out, err := applyOp(op, current, exists)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit: %w", err)
		}
		switch out {
		case outcomeSkip:
			result.Skipped = append(result.Skipped, op.Ref)
			continue
		case outcomeNone:
			continue
		}

		if !seen {
			order = append(order, op.Ref)
		}
		if out == outcomeDelete {
			view[op.Ref] = &staged{deleted: true}
			continue
		}
		data, err := ir.MarshalCanonical(next)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit: encode %s: %w", op.Ref, err)
		}
		view[op.Ref] = &staged{data: data}
	}

	for _, ref := range order {
		st := view[ref]
		coll := s.collections[ref.Collection]
		if st.deleted {
			delete(coll, ref.ID)
			continue
		}
		if coll == nil {
			coll = make(map[string][]byte)
			s.collections[ref.Collection] = coll
		}
		coll[ref.ID] = st.data
	}
	return result, nil
}

// Close implements Adapter.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
