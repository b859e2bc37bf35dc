package condition

import "mergetree/internal/field"

// Set is the minimal collaborator spec.md §6 names as an external
// interface for evaluating IN/NOT IN against a range without enumerating
// every row: an in-memory literal list is enough to exercise the engine
// end-to-end, though a real deployment would back this with a hash index
// or a bloom filter over a much larger materialized set.
type Set struct {
	Values []field.Field
}

// NewSet builds a Set from literal values, as produced by an IN (...)
// clause in the parsed predicate.
func NewSet(values ...field.Field) *Set {
	return &Set{Values: values}
}

// Evaluate answers, for an IN_SET atom's "could this range contain a match"
// question, the conservative (can_be_true, can_be_false) pair spec.md
// §4.4.3 step 2 requires: can_be_true is true iff some set member falls
// inside r; can_be_false is true unless the range is a single point that
// is itself a set member (in which case every row in range — there's only
// one possible value — matches).
func (s *Set) Evaluate(r Range) (canBeTrue, canBeFalse bool) {
	if s == nil || len(s.Values) == 0 {
		return false, true
	}
	for _, v := range s.Values {
		if r.ContainsPoint(v) {
			canBeTrue = true
			break
		}
	}
	if r.Left != nil && r.Right != nil && r.LeftIncluded && r.RightIncluded && field.Equal(*r.Left, *r.Right) {
		canBeFalse = !canBeTrue
		return
	}
	canBeFalse = true
	return
}
