package queryir

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Validate checks that a query can be executed by every backend.
//
// Field paths are restricted to [A-Za-z0-9_] segments joined by dots, which
// lets SQL backends embed them in JSON path expressions without quoting.
func Validate(q Query) error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection is required")
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	for _, o := range q.OrderBy {
		if err := ValidateField(o.Field); err != nil {
			return fmt.Errorf("query: order by: %w", err)
		}
	}
	if q.Filter != nil {
		if err := validatePredicate(q.Filter); err != nil {
			return fmt.Errorf("query: %w", err)
		}
	}
	return nil
}

// ValidateField checks a dotted field path.
func ValidateField(path string) error {
	if path == "" {
		return fmt.Errorf("empty field path")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid field path %q", path)
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			default:
				return fmt.Errorf("invalid character %q in field path %q", r, path)
			}
		}
	}
	return nil
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case Equals:
		return validateComparison(pred.Field, pred.Value)
	case *Equals:
		return validateComparison(pred.Field, pred.Value)
	case Compare:
		return validateCompare(pred)
	case *Compare:
		return validateCompare(*pred)
	case And:
		return validateAnd(pred)
	case *And:
		return validateAnd(*pred)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateCompare(c Compare) error {
	switch c.Op {
	case OpLt, OpLte, OpGt, OpGte:
	default:
		return fmt.Errorf("unsupported operator %q on field %q", c.Op, c.Field)
	}
	return validateComparison(c.Field, c.Value)
}

func validateAnd(a And) error {
	for _, sub := range a.Predicates {
		if sub == nil {
			return fmt.Errorf("nil predicate inside And")
		}
		if err := validatePredicate(sub); err != nil {
			return err
		}
	}
	return nil
}

func validateComparison(field string, value any) error {
	if err := ValidateField(field); err != nil {
		return err
	}
	switch v := value.(type) {
	case string, bool, int, int32, int64, json.Number:
		return nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("field %q compared to non-finite number", field)
		}
		return nil
	case nil:
		return fmt.Errorf("field %q compared to null", field)
	default:
		return fmt.Errorf("field %q compared to non-scalar %T", field, value)
	}
}
