package condition

import "mergetree/internal/field"

// Parallelogram is an n-dimensional box: one Range per primary-key column,
// the unit the evaluator decomposes a (left, right) tuple range into
// before running the RPN (spec.md §4.4.3).
type Parallelogram []Range

// UniversalParallelogram returns a box with no constraint on any of the n
// dimensions.
func UniversalParallelogram(n int) Parallelogram {
	p := make(Parallelogram, n)
	return p
}

// RangeOf returns the constraint on dimension col, or the universal range
// if col is out of bounds (a column beyond the decomposed prefix).
func (p Parallelogram) RangeOf(col int) Range {
	if col < 0 || col >= len(p) {
		return Universal()
	}
	return p[col]
}

// decomposeRange splits the tuple range [left, right] into a set of
// parallelograms whose union covers that range (§4.4.3 step 1). The union
// can also include tuples outside the range: a one-sided range constrains
// only the first key column, and see decomposeBounded for the two-sided
// case. leftBounded/rightBounded being false models an open
// (unbounded) end, used when a part's range extends to the table's first
// or last row.
func decomposeRange(left, right []field.Field, leftBounded, rightBounded bool, dims int) []Parallelogram {
	switch {
	case leftBounded && rightBounded:
		return decomposeBounded(left, right, dims)
	case leftBounded:
		p := UniversalParallelogram(dims)
		if len(left) > 0 {
			p[0] = GreaterOrEqual(left[0])
		}
		return []Parallelogram{p}
	case rightBounded:
		p := UniversalParallelogram(dims)
		if len(right) > 0 {
			p[0] = LessOrEqual(right[0])
		}
		return []Parallelogram{p}
	default:
		return []Parallelogram{UniversalParallelogram(dims)}
	}
}

// decomposeBounded decomposes a fully bounded [left, right] tuple range
// with a single split at the first differing coordinate i: a left tail, a
// middle slab and a right tail. It does not recurse into the tails, so
// only coordinates up to i+1 are constrained.
func decomposeBounded(left, right []field.Field, dims int) []Parallelogram {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	i := 0
	for i < n && field.Equal(left[i], right[i]) {
		i++
	}

	base := UniversalParallelogram(dims)
	for j := 0; j < i && j < dims; j++ {
		base[j] = Point(left[j])
	}

	if i >= n {
		// Every shared coordinate was equal: the range is the single point
		// prefix, open in every remaining dimension.
		return []Parallelogram{base}
	}

	var out []Parallelogram

	// Tail 1: [left_i] x [left_{i+1}, +∞) x ...
	if i < dims {
		tail1 := clone(base)
		tail1[i] = Point(left[i])
		if i+1 < dims && i+1 < len(left) {
			tail1[i+1] = GreaterOrEqual(left[i+1])
		}
		out = append(out, tail1)
	}

	// Middle: (left_i, right_i) x (-∞,+∞) x ...
	if i < dims {
		lv, rv := left[i], right[i]
		if field.Compare(lv, rv) < 0 {
			middle := clone(base)
			middle[i] = Between(&lv, &rv, false, false)
			out = append(out, middle)
		}
	}

	// Tail 2: [right_i] x (-∞, right_{i+1}] x ...
	if i < dims {
		tail2 := clone(base)
		tail2[i] = Point(right[i])
		if i+1 < dims && i+1 < len(right) {
			tail2[i+1] = LessOrEqual(right[i+1])
		}
		out = append(out, tail2)
	}

	// Coordinates beyond i+1 stay universal in both tails, so the union is
	// a superset of [left, right]: with left = (1, 5, 7), tail 1 also holds
	// (1, 5, 0), which sorts before left. Every tuple of the range is
	// covered, so a range is never pruned wrongly, only less tightly.
	return out
}

func clone(p Parallelogram) Parallelogram {
	out := make(Parallelogram, len(p))
	copy(out, p)
	return out
}
