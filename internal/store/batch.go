package store

import (
	"fmt"

	"github.com/roach88/syncq/internal/ir"
)

// OpKind is the kind of a batch operation.
type OpKind string

const (
	// OpSet replaces the document (creating it if missing).
	OpSet OpKind = "set"
	// OpMerge writes fields into the document, creating it if missing.
	OpMerge OpKind = "merge"
	// OpUpdate writes fields into an existing document.
	OpUpdate OpKind = "update"
	// OpDelete removes the document. Deleting a missing document is a no-op.
	OpDelete OpKind = "delete"
)

// Op is a single write in a Batch.
type Op struct {
	Kind   OpKind
	Ref    Ref
	Fields ir.Document // dotted paths, may contain ir.Increment / ir.DeleteField

	// Require lists field values that must hold on the stored document for
	// the op to apply (Update and Delete only). A missing document never
	// satisfies a non-empty Require.
	Require ir.Document
}

// Batch is an ordered list of writes committed atomically. Later ops see
// the effect of earlier ops on the same document.
type Batch struct {
	ops []Op
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues a replace of collection/id.
func (b *Batch) Set(collection, id string, fields ir.Document) *Batch {
	return b.add(Op{Kind: OpSet, Ref: Ref{collection, id}, Fields: fields})
}

// Merge queues a create-or-merge of collection/id.
func (b *Batch) Merge(collection, id string, fields ir.Document) *Batch {
	return b.add(Op{Kind: OpMerge, Ref: Ref{collection, id}, Fields: fields})
}

// Update queues a write into the existing document collection/id.
func (b *Batch) Update(collection, id string, fields ir.Document) *Batch {
	return b.add(Op{Kind: OpUpdate, Ref: Ref{collection, id}, Fields: fields})
}

// UpdateIf queues an Update that only applies when require holds.
func (b *Batch) UpdateIf(collection, id string, require, fields ir.Document) *Batch {
	return b.add(Op{Kind: OpUpdate, Ref: Ref{collection, id}, Fields: fields, Require: require})
}

// Delete queues removal of collection/id.
func (b *Batch) Delete(collection, id string) *Batch {
	return b.add(Op{Kind: OpDelete, Ref: Ref{collection, id}})
}

// DeleteIf queues a Delete that only applies when require holds.
func (b *Batch) DeleteIf(collection, id string, require ir.Document) *Batch {
	return b.add(Op{Kind: OpDelete, Ref: Ref{collection, id}, Require: require})
}

func (b *Batch) add(op Op) *Batch {
	b.ops = append(b.ops, op)
	return b
}

// Ops returns the queued ops in order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len returns the number of queued ops.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// outcome is the effect of one op on one document.
type outcome int

const (
	outcomeWrite outcome = iota
	outcomeDelete
	outcomeSkip
	outcomeNone
)

// applyOp computes the new state of a document. Every backend funnels its
// Commit through here so all of them agree on op semantics.
func applyOp(op Op, current ir.Document, exists bool) (ir.Document, outcome, error) {
	if op.Ref.Collection == "" || op.Ref.ID == "" {
		return nil, outcomeNone, fmt.Errorf("%s: empty collection or id", op.Kind)
	}
	if len(op.Require) > 0 && (!exists || !satisfies(current, op.Require)) {
		return nil, outcomeSkip, nil
	}

	switch op.Kind {
	case OpSet:
		next, err := ir.ApplyFields(nil, op.Fields)
		if err != nil {
			return nil, outcomeNone, fmt.Errorf("set %s: %w", op.Ref, err)
		}
		return next, outcomeWrite, nil
	case OpMerge:
		next, err := ir.ApplyFields(current, op.Fields)
		if err != nil {
			return nil, outcomeNone, fmt.Errorf("merge %s: %w", op.Ref, err)
		}
		return next, outcomeWrite, nil
	case OpUpdate:
		if !exists {
			return nil, outcomeNone, fmt.Errorf("update %s: %w", op.Ref, ErrNotFound)
		}
		next, err := ir.ApplyFields(current, op.Fields)
		if err != nil {
			return nil, outcomeNone, fmt.Errorf("update %s: %w", op.Ref, err)
		}
		return next, outcomeWrite, nil
	case OpDelete:
		if !exists {
			return nil, outcomeNone, nil
		}
		return nil, outcomeDelete, nil
	default:
		return nil, outcomeNone, fmt.Errorf("unknown op kind %q", op.Kind)
	}
}

func satisfies(doc ir.Document, require ir.Document) bool {
	for _, key := range require.SortedKeys() {
		got, ok := doc.Lookup(key)
		if !ok {
			return false
		}
		c, ok := ir.Compare(got, require[key])
		if !ok || c != 0 {
			return false
		}
	}
	return true
}

// encode serializes a document for storage.
func encode(doc ir.Document) (string, error) {
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
