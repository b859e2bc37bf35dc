package condition

import "mergetree/internal/field"

// String renders an AtomType for diagnostics (the explain subcommand).
func (t AtomType) String() string {
	switch t {
	case FuncInRange:
		return "in_range"
	case FuncNotInRange:
		return "not_in_range"
	case FuncInSet:
		return "in_set"
	case FuncNotInSet:
		return "not_in_set"
	case FuncAlwaysTrue:
		return "always_true"
	case FuncAlwaysFalse:
		return "always_false"
	case FuncUnknown:
		return "unknown"
	default:
		return "atom"
	}
}

// AtomType is the kind of leaf constraint an RPN atom carries, per the
// atom map in spec.md §4.4.1.
type AtomType int

const (
	FuncInRange AtomType = iota
	FuncNotInRange
	FuncInSet
	FuncNotInSet
	FuncAlwaysTrue
	FuncAlwaysFalse
	FuncUnknown
)

// Atom is one leaf of the RPN: a constraint on a single key column, after
// applying any monotonic function chain that wrapped it.
type Atom struct {
	Type AtomType

	// KeyColumn is the index into the primary key this atom constrains.
	// -1 when the atom did not resolve to a key column at all (UNKNOWN).
	KeyColumn int

	// Chain is the sequence of functions applied to the column before the
	// comparison, outermost last (e.g. toMonday(toStartOfHour(x)) records
	// [toStartOfHour, toMonday]). Empty for a bare column reference.
	Chain []Function

	Range Range
	Set   *Set
}

// applyChainToRange pushes a key-column range through an atom's function
// chain by applying each function to both endpoints and swapping the
// endpoints whenever a step is negative-monotonic (spec.md §4.4.2). Finite
// endpoints come out inclusive: the functions are only non-decreasing (or
// non-increasing), so a key just inside an exclusive bound can map onto
// the bound's own image. It returns ok=false if any step in the chain is
// non-monotonic, in which case the caller must degenerate the atom to
// UNKNOWN.
func applyChainToRange(chain []Function, r Range) (Range, bool) {
	cur := r
	for _, fn := range chain {
		m := fn.MonotonicityOn(cur.Left, cur.Right)
		if !m.IsMonotonic {
			return Range{}, false
		}
		left, right := cur.Left, cur.Right
		leftIncluded, rightIncluded := cur.LeftIncluded || left != nil, cur.RightIncluded || right != nil
		var nl, nr *field.Field
		if left != nil {
			v := fn.Execute(*left)
			nl = &v
		}
		if right != nil {
			v := fn.Execute(*right)
			nr = &v
		}
		if m.IsPositive {
			cur = Range{Left: nl, Right: nr, LeftIncluded: leftIncluded, RightIncluded: rightIncluded}
		} else {
			cur = Range{Left: nr, Right: nl, LeftIncluded: rightIncluded, RightIncluded: leftIncluded}
		}
	}
	return cur, true
}
