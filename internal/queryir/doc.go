// Package queryir provides the abstract query representation used to read
// documents out of a store backend.
//
// A Query names a collection, an optional filter predicate, an ordering and
// a limit. Backends either evaluate it directly (memory, via Match and
// CompareDocs) or compile it (querysql) to parameterized SQL.
//
// Predicate is a sealed interface using the marker method pattern. Only the
// types in this package implement it, so backends can switch over them
// exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case And:
//	}
//
// The supported fragment is deliberately small:
//   - Equals: field = literal
//   - Compare: field <, <=, >, >= literal
//   - And: conjunction (empty And is always true)
//
// There is no OR, no NULL comparison and no projection. A document missing
// a filtered field never matches. A document missing an ordered field sorts
// before every document that has it (ascending) and after (descending).
//
// Every result set is totally ordered: after the explicit Order keys,
// backends always break ties by document id using binary collation.
package queryir
