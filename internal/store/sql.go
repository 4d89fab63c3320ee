package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queryir"
	"github.com/roach88/syncq/internal/querysql"
)

// sqlStatements are the dialect-specific statements a sqlBackend needs.
type sqlStatements struct {
	get       string // (collection, id) -> data
	getLocked string // same, inside Commit
	upsert    string // (collection, id, data)
	delete    string // (collection, id)
}

// sqlBackend implements Adapter over database/sql for any dialect the
// querysql compiler supports.
type sqlBackend struct {
	db       *sql.DB
	compiler *querysql.Compiler
	stmts    sqlStatements
}

func (b *sqlBackend) Get(ctx context.Context, collection, id string) (ir.Document, error) {
	var data string
	err := b.db.QueryRowContext(ctx, b.stmts.get, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return ir.Decode([]byte(data))
}

func (b *sqlBackend) Query(ctx context.Context, q queryir.Query) ([]Snapshot, error) {
	query, args, err := b.compiler.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", q.Collection, err)
		}
		doc, err := ir.Decode([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("query %s/%s: %w", q.Collection, id, err)
		}
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return out, nil
}

func (b *sqlBackend) Count(ctx context.Context, q queryir.Query) (int, error) {
	query, args, err := b.compiler.Count(q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	return n, nil
}

// Commit runs the batch in one transaction: each op reads the current row
// (locked where the dialect supports it), applies the op and writes back.
func (b *sqlBackend) Commit(ctx context.Context, batch *Batch) (CommitResult, error) {
	var result CommitResult
	if batch.Len() == 0 {
		return result, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("commit: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, op := range batch.Ops() {
		current, exists, err := b.readLocked(ctx, tx, op.Ref)
		if err != nil {
			return CommitResult{}, err
		}
		next, out, err := applyOp(op, current, exists)
		if err != nil {
			return CommitResult{}, fmt.Errorf("commit: %w", err)
		}
		switch out {
		case outcomeSkip:
			result.Skipped = append(result.Skipped, op.Ref)
		case outcomeDelete:
			if _, err := tx.ExecContext(ctx, b.stmts.delete, op.Ref.Collection, op.Ref.ID); err != nil {
				return CommitResult{}, fmt.Errorf("commit: delete %s: %w", op.Ref, err)
			}
		case outcomeWrite:
			data, err := encode(next)
			if err != nil {
				return CommitResult{}, fmt.Errorf("commit: encode %s: %w", op.Ref, err)
			}
			if _, err := tx.ExecContext(ctx, b.stmts.upsert, op.Ref.Collection, op.Ref.ID, data); err != nil {
				return CommitResult{}, fmt.Errorf("commit: write %s: %w", op.Ref, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (b *sqlBackend) readLocked(ctx context.Context, tx *sql.Tx, ref Ref) (ir.Document, bool, error) {
	var data string
	err := tx.QueryRowContext(ctx, b.stmts.getLocked, ref.Collection, ref.ID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("commit: read %s: %w", ref, err)
	}
	doc, err := ir.Decode([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("commit: read %s: %w", ref, err)
	}
	return doc, true, nil
}

func (b *sqlBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
