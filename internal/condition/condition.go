// Package condition implements C4, the primary-key condition: building a
// reverse-Polish predicate program from a parsed WHERE/PREWHERE tree
// (spec.md §4.4.1), and evaluating whether a contiguous primary-key range
// could contain a matching row (§4.4.3) — the core of index pruning.
package condition

import (
	"errors"
	"fmt"
	"strings"

	"mergetree/internal/field"
	"mergetree/internal/predicate"
)

var errMalformedRPN = errors.New("condition: malformed RPN program")

// PKCondition is a compiled primary-key predicate, ready to be evaluated
// against candidate part ranges.
type PKCondition struct {
	program      []RPNElement
	keyColumns   []string
	maxKeyColumn int
}

// Build walks expr and compiles it into a PKCondition over the ordered
// primary-key column list, per spec.md §4.4.1.
func Build(expr predicate.Expr, keyColumns []string, fns Registry) *PKCondition {
	b := &builder{
		keyIndex: make(map[string]int, len(keyColumns)),
		fns:      fns,
	}
	for i, c := range keyColumns {
		b.keyIndex[c] = i
	}
	b.walk(expr)
	return &PKCondition{program: b.program, keyColumns: keyColumns, maxKeyColumn: b.maxKeyColumn}
}

type builder struct {
	program      []RPNElement
	keyIndex     map[string]int
	fns          Registry
	maxKeyColumn int
}

func (b *builder) emit(el RPNElement) {
	if el.Op == OpAtom && el.Atom.KeyColumn > b.maxKeyColumn {
		b.maxKeyColumn = el.Atom.KeyColumn
	}
	b.program = append(b.program, el)
}

func (b *builder) walk(e predicate.Expr) {
	call, ok := e.(*predicate.Call)
	if !ok {
		b.emit(RPNElement{Op: OpUnknown})
		return
	}

	switch call.Name {
	case predicate.OpAnd:
		for _, arg := range call.Args {
			b.walk(arg)
		}
		for i := 1; i < len(call.Args); i++ {
			b.emit(RPNElement{Op: OpAnd})
		}
		return
	case predicate.OpOr:
		for _, arg := range call.Args {
			b.walk(arg)
		}
		for i := 1; i < len(call.Args); i++ {
			b.emit(RPNElement{Op: OpOr})
		}
		return
	case predicate.OpNot:
		if len(call.Args) == 1 {
			b.walk(call.Args[0])
			b.emit(RPNElement{Op: OpNot})
			return
		}
	case predicate.OpIndexHint:
		if len(call.Args) == 1 {
			b.walk(call.Args[0])
			return
		}
	}

	if atom, ok := b.buildAtom(call); ok {
		b.emit(RPNElement{Op: OpAtom, Atom: atom})
		return
	}
	b.emit(RPNElement{Op: OpUnknown})
}

// buildAtom attempts to construct an atom entry for a single comparison
// node, per spec.md §4.4.1's constant/column-or-chain identification and
// the atom map.
func (b *builder) buildAtom(call *predicate.Call) (Atom, bool) {
	name := call.Name

	if name == predicate.FnIn || name == predicate.FnNotIn {
		return b.buildSetAtom(call)
	}
	if name == predicate.FnLike {
		return b.buildLikeAtom(call)
	}

	if len(call.Args) != 2 {
		return Atom{}, false
	}
	lhs, rhs := call.Args[0], call.Args[1]

	chain, col, lit, litOnLeft, ok := b.resolveOperands(lhs, rhs)
	if !ok {
		return Atom{}, false
	}

	fnName := name
	if litOnLeft {
		inverted, invertible := predicate.InvertedComparator(fnName)
		if !invertible {
			return Atom{}, false
		}
		fnName = inverted
	}

	var r Range
	switch fnName {
	case predicate.FnEquals:
		r = Point(lit)
	case predicate.FnNotEquals:
		return Atom{Type: FuncNotInRange, KeyColumn: col, Chain: chain, Range: Point(lit)}, true
	case predicate.FnLess:
		r = LessThan(lit)
	case predicate.FnGreater:
		r = GreaterThan(lit)
	case predicate.FnLessOrEquals:
		r = LessOrEqual(lit)
	case predicate.FnGreaterOrEquals:
		r = GreaterOrEqual(lit)
	default:
		return Atom{}, false
	}
	return Atom{Type: FuncInRange, KeyColumn: col, Chain: chain, Range: r}, true
}

func (b *builder) buildSetAtom(call *predicate.Call) (Atom, bool) {
	if len(call.Args) != 2 {
		return Atom{}, false
	}
	chain, col, ok := b.resolveKeyChain(call.Args[0])
	if !ok {
		return Atom{}, false
	}
	setLit, ok := call.Args[1].(*predicate.SetLiteral)
	if !ok {
		return Atom{}, false
	}
	typ := FuncInSet
	if call.Name == predicate.FnNotIn {
		typ = FuncNotInSet
	}
	return Atom{Type: typ, KeyColumn: col, Chain: chain, Set: NewSet(setLit.Values...)}, true
}

// buildLikeAtom extracts the longest fixed literal prefix of a LIKE
// pattern and derives a half-open range from it, per spec.md §4.4.1.
func (b *builder) buildLikeAtom(call *predicate.Call) (Atom, bool) {
	if len(call.Args) != 2 {
		return Atom{}, false
	}
	chain, col, ok := b.resolveKeyChain(call.Args[0])
	if !ok {
		return Atom{}, false
	}
	patternConst, ok := call.Args[1].(*predicate.Const)
	if !ok || patternConst.Value.Kind() != field.KindString {
		return Atom{}, false
	}
	prefix := literalPrefix(patternConst.Value.AsString())
	if prefix == "" {
		return Atom{}, false
	}
	left := field.String(prefix)
	if next, ok := nextPrefix(prefix); ok {
		right := field.String(next)
		return Atom{Type: FuncInRange, KeyColumn: col, Chain: chain, Range: Between(&left, &right, true, false)}, true
	}
	return Atom{Type: FuncInRange, KeyColumn: col, Chain: chain, Range: GreaterOrEqual(left)}, true
}

// literalPrefix returns the longest fixed prefix of a LIKE pattern,
// stopping at the first unescaped '%' or '_'.
func literalPrefix(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '%' || r == '_' {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nextPrefix computes the smallest string strictly greater than every
// string with the given prefix, by incrementing the last byte not equal
// to 0xFF and truncating trailing 0xFF bytes (spec.md §4.4.1).
func nextPrefix(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xFF {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// resolveOperands identifies, for a two-argument comparison, which side is
// the constant and which is a (possibly function-wrapped) key column.
func (b *builder) resolveOperands(lhs, rhs predicate.Expr) (chain []Function, col int, lit field.Field, litOnLeft bool, ok bool) {
	if c, isLit := lhs.(*predicate.Const); isLit {
		chain, col, ok = b.resolveKeyChain(rhs)
		return chain, col, c.Value, true, ok
	}
	if c, isLit := rhs.(*predicate.Const); isLit {
		chain, col, ok = b.resolveKeyChain(lhs)
		return chain, col, c.Value, false, ok
	}
	return nil, 0, field.Field{}, false, false
}

// resolveKeyChain unwraps e as either a bare key column reference or a
// chain of single-argument function calls around one, returning the
// resolved chain (outermost last) and key column index.
func (b *builder) resolveKeyChain(e predicate.Expr) ([]Function, int, bool) {
	var chain []Function
	cur := e
	for {
		switch n := cur.(type) {
		case *predicate.Column:
			idx, ok := b.keyIndex[n.Name]
			if !ok {
				return nil, 0, false
			}
			reversed := make([]Function, len(chain))
			for i, f := range chain {
				reversed[len(chain)-1-i] = f
			}
			return reversed, idx, true
		case *predicate.Call:
			if len(n.Args) != 1 {
				return nil, 0, false
			}
			fn, ok := b.fns.Lookup(n.Name)
			if !ok {
				return nil, 0, false
			}
			chain = append(chain, fn)
			cur = n.Args[0]
		default:
			return nil, 0, false
		}
	}
}

// AlwaysUnknownOrTrue reports whether the condition provides no pruning at
// all — its RPN collapses to a single UNKNOWN/ALWAYS_TRUE token — so index
// analysis can be skipped entirely (spec.md §4.4.4).
func (c *PKCondition) AlwaysUnknownOrTrue() bool {
	if len(c.program) != 1 {
		return false
	}
	switch c.program[0].Op {
	case OpUnknown, OpAlwaysTrue:
		return true
	}
	return false
}

// MaxKeyColumn returns the highest-indexed primary-key column referenced
// by any atom, enabling callers to read only a prefix of the key into
// marks (spec.md §4.4.4).
func (c *PKCondition) MaxKeyColumn() int {
	return c.maxKeyColumn
}

// Explain renders the compiled RPN program one element per line, for the
// CLI's explain subcommand: atoms show their key column index, comparator
// type, and literal range or set; and/or/not show as themselves.
func (c *PKCondition) Explain() string {
	var b strings.Builder
	for i, el := range c.program {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch el.Op {
		case OpAtom:
			fmt.Fprintf(&b, "ATOM key[%d] %s", el.Atom.KeyColumn, el.Atom.Type)
			if el.Atom.Range.Left != nil || el.Atom.Range.Right != nil {
				fmt.Fprintf(&b, " range=%s", el.Atom.Range.String())
			}
			if el.Atom.Set != nil {
				fmt.Fprintf(&b, " set=%v", el.Atom.Set.Values)
			}
		case OpAnd:
			b.WriteString("AND")
		case OpOr:
			b.WriteString("OR")
		case OpNot:
			b.WriteString("NOT")
		case OpUnknown:
			b.WriteString("UNKNOWN")
		case OpAlwaysTrue:
			b.WriteString("ALWAYS_TRUE")
		case OpAlwaysFalse:
			b.WriteString("ALWAYS_FALSE")
		}
	}
	return b.String()
}

// MayBeTrueInRange answers whether any row in the primary-key range
// [left, right] could satisfy the condition. leftBounded/rightBounded
// false models an open end (the table's first/last row), per spec.md
// §4.4.3.
func (c *PKCondition) MayBeTrueInRange(left, right []field.Field, leftBounded, rightBounded bool) (bool, error) {
	if c.AlwaysUnknownOrTrue() {
		return true, nil
	}
	dims := len(c.keyColumns)
	parallelograms := decomposeRange(left, right, leftBounded, rightBounded, dims)
	for _, p := range parallelograms {
		ok, err := evalRPN(c.program, p)
		if err != nil {
			return true, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
