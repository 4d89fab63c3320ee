// Package store provides the transactional document store the queue is
// built on.
//
// Documents are JSON objects addressed by (collection, id). Every backend
// implements Adapter:
//   - Get: read one document by id
//   - Query / Count: filtered, ordered, limited reads (queryir)
//   - Commit: apply a Batch of Set / Merge / Update / Delete ops atomically
//
// Update and Delete ops may carry field preconditions. An op whose
// precondition does not hold is skipped and reported in CommitResult; the
// rest of the batch still applies. This gives callers compare-and-set
// semantics without record-level locks.
//
// # Backends
//
//   - memory://            in-process maps, copies on every read and write
//   - sqlite://<path>      mattn/go-sqlite3, WAL, single writer connection
//   - postgres://...       lib/pq, jsonb column, row locks during Commit
//
// All backends store canonical JSON (ir.MarshalCanonical) and decode with
// json.Number, so the same document reads back identically everywhere.
//
// # Deterministic Query Results
//
// Every Query result is totally ordered: explicit OrderBy keys first, then
// document id in binary collation.
package store
