package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // registers literal ValueExpr, required for ast.ValueExpr.GetValue to work

	"mergetree/internal/field"
)

// ParseWhere parses the text of a WHERE (or PREWHERE) clause into an Expr
// tree, using TiDB's SQL parser the same way the teacher's
// internal/parser/mysql package walks the AST for CREATE TABLE statements
// — wrapping the fragment in a throwaway SELECT so the grammar has a
// complete statement to parse, then discarding everything but the WHERE
// expression.
func ParseWhere(whereClause string) (Expr, error) {
	stmt := fmt.Sprintf("SELECT * FROM t WHERE %s", whereClause)
	p := parser.New()
	nodes, _, err := p.Parse(stmt, "", "")
	if err != nil {
		return nil, fmt.Errorf("predicate: parse WHERE clause: %w", err)
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("predicate: expected exactly one statement, got %d", len(nodes))
	}
	sel, ok := nodes[0].(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return nil, fmt.Errorf("predicate: expected a WHERE-bearing SELECT statement")
	}
	return fromAST(sel.Where)
}

func fromAST(n ast.ExprNode) (Expr, error) {
	switch e := n.(type) {
	case *ast.BinaryOperationExpr:
		return binaryOp(e)
	case *ast.UnaryOperationExpr:
		if e.Op == opcode.Not {
			arg, err := fromAST(e.V)
			if err != nil {
				return nil, err
			}
			return &Call{Name: OpNot, Args: []Expr{arg}}, nil
		}
		return nil, fmt.Errorf("predicate: unsupported unary operator %v", e.Op)
	case *ast.ColumnNameExpr:
		return &Column{Name: e.Name.Name.O}, nil
	case *ast.ValueExpr:
		return &Const{Value: valueToField(e)}, nil
	case *ast.PatternInExpr:
		return patternIn(e)
	case *ast.PatternLikeOrIlikeExpr:
		return patternLike(e)
	case *ast.ParenthesesExpr:
		return fromAST(e.Expr)
	case *ast.FuncCallExpr:
		return funcCall(e)
	default:
		return &unrecognized{}, nil
	}
}

// unrecognized stands in for any AST node this adapter does not model; it
// is not a *Call/*Column/*Const/*SetLiteral, so internal/condition's
// builder treats it as UNKNOWN, per spec.md §4.4.1.
type unrecognized struct{}

func (*unrecognized) isExpr() {}

func binaryOp(e *ast.BinaryOperationExpr) (Expr, error) {
	name, ok := comparatorName(e.Op)
	if !ok {
		left, lerr := fromAST(e.L)
		right, rerr := fromAST(e.R)
		if lerr != nil || rerr != nil {
			return &unrecognized{}, nil
		}
		switch e.Op {
		case opcode.LogicAnd:
			return &Call{Name: OpAnd, Args: []Expr{left, right}}, nil
		case opcode.LogicOr:
			return &Call{Name: OpOr, Args: []Expr{left, right}}, nil
		}
		return &unrecognized{}, nil
	}
	left, err := fromAST(e.L)
	if err != nil {
		return nil, err
	}
	right, err := fromAST(e.R)
	if err != nil {
		return nil, err
	}
	return &Call{Name: name, Args: []Expr{left, right}}, nil
}

func comparatorName(op opcode.Op) (string, bool) {
	switch op {
	case opcode.EQ:
		return FnEquals, true
	case opcode.NE:
		return FnNotEquals, true
	case opcode.LT:
		return FnLess, true
	case opcode.GT:
		return FnGreater, true
	case opcode.LE:
		return FnLessOrEquals, true
	case opcode.GE:
		return FnGreaterOrEquals, true
	default:
		return "", false
	}
}

func patternIn(e *ast.PatternInExpr) (Expr, error) {
	target, err := fromAST(e.Expr)
	if err != nil {
		return nil, err
	}
	values := make([]field.Field, 0, len(e.List))
	for _, item := range e.List {
		v, ok := item.(*ast.ValueExpr)
		if !ok {
			return &unrecognized{}, nil
		}
		values = append(values, valueToField(v))
	}
	name := FnIn
	if e.Not {
		name = FnNotIn
	}
	return &Call{Name: name, Args: []Expr{target, &SetLiteral{Values: values}}}, nil
}

func patternLike(e *ast.PatternLikeOrIlikeExpr) (Expr, error) {
	target, err := fromAST(e.Expr)
	if err != nil {
		return nil, err
	}
	pat, err := fromAST(e.Pattern)
	if err != nil {
		return nil, err
	}
	if e.Not {
		return &Call{Name: OpNot, Args: []Expr{&Call{Name: FnLike, Args: []Expr{target, pat}}}}, nil
	}
	return &Call{Name: FnLike, Args: []Expr{target, pat}}, nil
}

// funcCall folds a single-argument scalar function call (toMonday(date),
// intHash32(id), toStartOfHour(ts)) into a Call node whose single Arg is
// the wrapped operand, matching the chain shape internal/condition expects.
func funcCall(e *ast.FuncCallExpr) (Expr, error) {
	if len(e.Args) != 1 {
		return &unrecognized{}, nil
	}
	arg, err := fromAST(e.Args[0])
	if err != nil {
		return nil, err
	}
	// Preserve the function name's original casing (FnName.O): the
	// monotonic-function registry keys are case-sensitive ("toStartOfHour",
	// not "tostartofhour"), matching how the column-name side is also
	// taken verbatim rather than normalized.
	return &Call{Name: e.FnName.O, Args: []Expr{arg}}, nil
}

func valueToField(v *ast.ValueExpr) field.Field {
	d := v.GetValue()
	switch val := d.(type) {
	case int64:
		return field.Int64(val)
	case uint64:
		return field.UInt64(val)
	case float64:
		return field.Float64(val)
	case string:
		return field.String(val)
	case nil:
		return field.Null()
	default:
		// types.Decimal and similar TiDB literal kinds stringify through
		// here; recover the numeric field when possible rather than
		// flattening a numeric literal to a string one.
		s := fmt.Sprintf("%v", val)
		if n, ok := parseNumeric(s); ok {
			return n
		}
		return field.String(s)
	}
}

// parseNumeric recovers an integer or float field from a literal's string
// form, for the driver-dependent value kinds that stringify instead of
// returning a native Go numeric type.
func parseNumeric(s string) (field.Field, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return field.Int64(i), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return field.Float64(f), true
	}
	return field.Field{}, false
}
