package queryir

import "github.com/roach88/syncq/internal/ir"

// Match reports whether doc satisfies pred. A nil predicate matches
// everything. Values of incomparable kinds never match.
func Match(pred Predicate, doc ir.Document) bool {
	switch p := pred.(type) {
	case nil:
		return true
	case Equals:
		return matchCompare(doc, p.Field, p.Value, func(c int) bool { return c == 0 })
	case *Equals:
		return Match(*p, doc)
	case Compare:
		return matchCompare(doc, p.Field, p.Value, opFunc(p.Op))
	case *Compare:
		return Match(*p, doc)
	case And:
		for _, sub := range p.Predicates {
			if !Match(sub, doc) {
				return false
			}
		}
		return true
	case *And:
		return Match(*p, doc)
	default:
		return false
	}
}

func matchCompare(doc ir.Document, field string, want any, accept func(int) bool) bool {
	got, ok := doc.Lookup(field)
	if !ok || got == nil {
		return false
	}
	c, ok := ir.Compare(got, want)
	return ok && accept(c)
}

func opFunc(op Op) func(int) bool {
	switch op {
	case OpLt:
		return func(c int) bool { return c < 0 }
	case OpLte:
		return func(c int) bool { return c <= 0 }
	case OpGt:
		return func(c int) bool { return c > 0 }
	case OpGte:
		return func(c int) bool { return c >= 0 }
	default:
		return func(int) bool { return false }
	}
}

// CompareDocs orders two documents by the given keys. It does not apply the
// id tiebreak; callers do that with the document ids.
func CompareDocs(orders []Order, a, b ir.Document) int {
	for _, o := range orders {
		c := compareField(o.Field, a, b)
		if o.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareField(field string, a, b ir.Document) int {
	av, aok := a.Lookup(field)
	bv, bok := b.Lookup(field)
	aok = aok && av != nil
	bok = bok && bv != nil
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	c, ok := ir.Compare(av, bv)
	if !ok {
		return 0
	}
	return c
}
