// Package predicate holds the minimal parsed-predicate representation that
// internal/condition builds a primary-key condition from (spec.md §4.4.1's
// "given the parsed predicate"). It does not itself parse SQL — see
// sqladapter.go for the TiDB-parser-backed adapter that produces these
// trees from WHERE-clause text.
package predicate

import "mergetree/internal/field"

// Expr is one node of a parsed WHERE/PREWHERE predicate tree.
type Expr interface {
	isExpr()
}

// Call is a function application: a boolean operator (and/or/not/indexHint),
// a comparison (equals/less/...), or a single-argument scalar function
// wrapping a column reference (e.g. toMonday(date)).
type Call struct {
	Name string
	Args []Expr
}

func (*Call) isExpr() {}

// Column references one primary-key (or ordinary) column by name.
type Column struct {
	Name string
}

func (*Column) isExpr() {}

// Const is a literal value, already folded to a field.Field.
type Const struct {
	Value field.Field
}

func (*Const) isExpr() {}

// SetLiteral is the right-hand side of IN/NOT IN: a literal tuple list.
type SetLiteral struct {
	Values []field.Field
}

func (*SetLiteral) isExpr() {}

// Boolean operator and no-op names recognized during RPN construction.
const (
	OpAnd       = "and"
	OpOr        = "or"
	OpNot       = "not"
	OpIndexHint = "indexHint"
)

// Comparison / constrainable function names recognized by the atom map.
const (
	FnEquals          = "equals"
	FnNotEquals       = "notEquals"
	FnLess            = "less"
	FnGreater         = "greater"
	FnLessOrEquals    = "lessOrEquals"
	FnGreaterOrEquals = "greaterOrEquals"
	FnIn              = "in"
	FnNotIn           = "notIn"
	FnLike            = "like"
)

// invertedComparator returns the comparator that results from swapping the
// operand order (used when the constant argument appears on the left), and
// whether the function is invertible at all (in/notIn/like are not).
func invertedComparator(name string) (string, bool) {
	switch name {
	case FnEquals:
		return FnEquals, true
	case FnNotEquals:
		return FnNotEquals, true
	case FnLess:
		return FnGreater, true
	case FnGreater:
		return FnLess, true
	case FnLessOrEquals:
		return FnGreaterOrEquals, true
	case FnGreaterOrEquals:
		return FnLessOrEquals, true
	default:
		return "", false
	}
}

// InvertedComparator is exported for internal/condition's atom construction.
func InvertedComparator(name string) (string, bool) { return invertedComparator(name) }
