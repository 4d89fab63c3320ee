package store

import (
	"context"
	"errors"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queryir"
)

// ErrNotFound is returned by Get when the document does not exist, and by
// Commit when an unconditional Update targets a missing document.
var ErrNotFound = errors.New("document not found")

var errClosed = errors.New("store is closed")

// Adapter is a transactional document store.
//
// Thread-safety: implementations are safe for concurrent use.
type Adapter interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (ir.Document, error)

	// Query returns the matching documents in query order.
	Query(ctx context.Context, q queryir.Query) ([]Snapshot, error)

	// Count returns the number of matching documents. OrderBy and Limit
	// are ignored.
	Count(ctx context.Context, q queryir.Query) (int, error)

	// Commit applies every op in b atomically. Ops with unmet
	// preconditions are skipped and listed in the result.
	Commit(ctx context.Context, b *Batch) (CommitResult, error)

	// Close releases the backend's resources.
	Close() error
}

// Snapshot is one document returned by Query.
type Snapshot struct {
	ID   string
	Data ir.Document
}

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// CommitResult reports the ops that were skipped because their
// precondition did not hold.
type CommitResult struct {
	Skipped []Ref
}

// Applied reports whether the op on ref was applied (not skipped).
func (r CommitResult) Applied(ref Ref) bool {
	for _, s := range r.Skipped {
		if s == ref {
			return false
		}
	}
	return true
}

// Lookup reads a document and reports whether it exists.
func Lookup(ctx context.Context, a Adapter, collection, id string) (ir.Document, bool, error) {
	doc, err := a.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Set replaces one document outside of a larger batch.
func Set(ctx context.Context, a Adapter, collection, id string, fields ir.Document) error {
	b := NewBatch()
	b.Set(collection, id, fields)
	_, err := a.Commit(ctx, b)
	return err
}

// Merge creates or merges into one document outside of a larger batch.
func Merge(ctx context.Context, a Adapter, collection, id string, fields ir.Document) error {
	b := NewBatch()
	b.Merge(collection, id, fields)
	_, err := a.Commit(ctx, b)
	return err
}

// Update writes fields into an existing document outside of a larger batch.
func Update(ctx context.Context, a Adapter, collection, id string, fields ir.Document) error {
	b := NewBatch()
	b.Update(collection, id, fields)
	_, err := a.Commit(ctx, b)
	return err
}

// Delete removes one document outside of a larger batch.
func Delete(ctx context.Context, a Adapter, collection, id string) error {
	b := NewBatch()
	b.Delete(collection, id)
	_, err := a.Commit(ctx, b)
	return err
}
