// Package querysql compiles queryir queries to parameterized SQL over the
// documents table shared by the SQL store backends:
//
//	documents(collection TEXT, id TEXT, data <json>, PRIMARY KEY(collection, id))
//
// Every compiled row query ends with an ORDER BY whose last key is the
// document id in binary collation, so results are totally ordered. Values
// are always bound as parameters, never interpolated. Field paths are
// embedded in JSON path expressions; queryir.Validate restricts them to a
// charset that needs no quoting.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queryir"
)

// Dialect selects the SQL flavour.
type Dialect int

const (
	// SQLite uses json_extract and ? placeholders.
	SQLite Dialect = iota
	// Postgres uses jsonb path operators and $n placeholders.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// DefaultTable is the documents table name used when Compiler.Table is empty.
const DefaultTable = "documents"

// Compiler compiles queries for one dialect.
type Compiler struct {
	Dialect Dialect
	// Table is the (already quoted, if needed) documents table expression.
	Table string
}

// NewCompiler creates a Compiler for the given dialect over DefaultTable.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{Dialect: d, Table: DefaultTable}
}

// Select compiles q to a query returning (id, data) rows.
func (c *Compiler) Select(q queryir.Query) (string, []any, error) {
	where, args, err := c.where(q)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM ")
	sb.WriteString(c.table())
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(c.orderBy(q.OrderBy))
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(args.next(int64(q.Limit)))
	}
	return sb.String(), args.values, nil
}

// Count compiles q to a query returning a single COUNT(*) row.
// OrderBy and Limit are ignored.
func (c *Compiler) Count(q queryir.Query) (string, []any, error) {
	where, args, err := c.where(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + c.table() + " WHERE " + where, args.values, nil
}

func (c *Compiler) table() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}

func (c *Compiler) where(q queryir.Query) (string, *params, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}
	args := &params{dialect: c.Dialect}
	clause := "collection = " + args.next(q.Collection)
	if q.Filter != nil {
		filter, err := c.predicate(q.Filter, args)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		clause += " AND " + filter
	}
	return clause, args, nil
}

func (c *Compiler) predicate(p queryir.Predicate, args *params) (string, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.comparison(pred.Field, "=", pred.Value, args)
	case *queryir.Equals:
		return c.comparison(pred.Field, "=", pred.Value, args)
	case queryir.Compare:
		return c.comparison(pred.Field, string(pred.Op), pred.Value, args)
	case *queryir.Compare:
		return c.comparison(pred.Field, string(pred.Op), pred.Value, args)
	case queryir.And:
		return c.and(pred, args)
	case *queryir.And:
		return c.and(*pred, args)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *Compiler) and(a queryir.And, args *params) (string, error) {
	if len(a.Predicates) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(a.Predicates))
	for _, sub := range a.Predicates {
		sql, err := c.predicate(sub, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (c *Compiler) comparison(field, op string, value any, args *params) (string, error) {
	param, err := c.param(value)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	placeholder := args.next(param)
	if c.Dialect == Postgres {
		placeholder += "::jsonb"
	}
	return c.fieldExpr(field) + " " + op + " " + placeholder, nil
}

// fieldExpr extracts a document field as a comparable SQL value.
func (c *Compiler) fieldExpr(field string) string {
	if c.Dialect == Postgres {
		return "data #> '{" + strings.ReplaceAll(field, ".", ",") + "}'"
	}
	return "json_extract(data, '$." + field + "')"
}

// orderBy renders the ORDER BY keys. Missing fields sort first ascending on
// both dialects (SQLite's NULL ordering; Postgres needs it spelled out).
func (c *Compiler) orderBy(orders []queryir.Order) string {
	parts := make([]string, 0, len(orders)+1)
	for _, o := range orders {
		key := c.fieldExpr(o.Field)
		switch {
		case c.Dialect == Postgres && o.Desc:
			key += " DESC NULLS LAST"
		case c.Dialect == Postgres:
			key += " ASC NULLS FIRST"
		case o.Desc:
			key += " DESC"
		default:
			key += " ASC"
		}
		parts = append(parts, key)
	}
	if c.Dialect == Postgres {
		parts = append(parts, `id COLLATE "C" ASC`)
	} else {
		parts = append(parts, "id ASC COLLATE BINARY")
	}
	return strings.Join(parts, ", ")
}

// param converts a predicate literal to a driver value. Postgres compares
// jsonb against jsonb, so the literal is sent as canonical JSON text.
func (c *Compiler) param(v any) (any, error) {
	if c.Dialect == Postgres {
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	switch val := v.(type) {
	case string, bool, int64, float64:
		return val, nil
	default:
		if n, ok := ir.ToInt64(v); ok {
			return n, nil
		}
		if f, ok := ir.ToFloat64(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

type params struct {
	dialect Dialect
	values  []any
}

func (p *params) next(v any) string {
	p.values = append(p.values, v)
	if p.dialect == Postgres {
		return "$" + strconv.Itoa(len(p.values))
	}
	return "?"
}
