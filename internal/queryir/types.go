package queryir

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filter     Predicate // nil = all documents
	OrderBy    []Order
	Limit      int // 0 = unlimited
}

// Order is a single sort key.
type Order struct {
	Field string
	Desc  bool
}

// Asc orders by field ascending.
func Asc(field string) Order { return Order{Field: field} }

// Desc orders by field descending.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches documents whose field equals Value.
//
// Field is a dotted path ("syncStatus.lastSyncAt"). Value must be a scalar:
// string, bool or a number.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Op is a comparison operator.
type Op string

const (
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Compare matches documents whose field compares to Value with Op.
//
// Example:
//
//	Compare{Field: "completedAt", Op: OpLt, Value: cutoff}
type Compare struct {
	Field string
	Op    Op
	Value any
}

func (Compare) predicateNode() {}

// And is a conjunction of predicates (all must be true, empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Eq is shorthand for Equals{Field: field, Value: value}.
func Eq(field string, value any) Equals {
	return Equals{Field: field, Value: value}
}

// All is shorthand for And{Predicates: preds}.
func All(preds ...Predicate) And {
	return And{Predicates: preds}
}
