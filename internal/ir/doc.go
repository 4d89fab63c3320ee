// Package ir provides the document value model shared by the store, the queue
// and the action handlers.
//
// This package imports nothing internal. Every stored record is an ir.Document
// (a JSON object); the store persists documents in canonical JSON so the same
// logical document always produces the same bytes.
//
// Key constraints:
//   - Numbers decoded from storage are json.Number, never float64, so int64
//     nanosecond timestamps survive round trips
//   - Timestamps are stored as int64 Unix nanoseconds (see Time, TimeOf)
//   - Field names use camelCase; dotted paths address nested documents
//   - Increment and DeleteField are write-side sentinels and are never stored
package ir
