package condition

import "mergetree/internal/field"

// String renders a Range for diagnostics, e.g. "[10, 20)" or "(-inf, 5]".
func (r Range) String() string {
	left, right := "-inf", "+inf"
	if r.Left != nil {
		left = r.Left.String()
	}
	if r.Right != nil {
		right = r.Right.String()
	}
	openLeft, closeRight := "(", ")"
	if r.LeftIncluded {
		openLeft = "["
	}
	if r.RightIncluded {
		closeRight = "]"
	}
	return openLeft + left + ", " + right + closeRight
}

// Range is a one-dimensional interval over field.Field values, with either
// bound allowed to be infinite (nil pointer) and each finite bound
// independently inclusive or exclusive — the building block both atom
// ranges (§4.4.1) and parallelogram dimensions (§4.4.3) are expressed in.
type Range struct {
	Left          *field.Field
	Right         *field.Field
	LeftIncluded  bool
	RightIncluded bool
}

// Universal is (-∞, +∞), the range that places no constraint at all.
func Universal() Range {
	return Range{}
}

// Point is the single-value range {v}.
func Point(v field.Field) Range {
	return Range{Left: &v, Right: &v, LeftIncluded: true, RightIncluded: true}
}

// LessThan is (-∞, v).
func LessThan(v field.Field) Range { return Range{Right: &v} }

// LessOrEqual is (-∞, v].
func LessOrEqual(v field.Field) Range { return Range{Right: &v, RightIncluded: true} }

// GreaterThan is (v, +∞).
func GreaterThan(v field.Field) Range { return Range{Left: &v} }

// GreaterOrEqual is [v, +∞).
func GreaterOrEqual(v field.Field) Range { return Range{Left: &v, LeftIncluded: true} }

// Between builds an arbitrary finite or half-finite range.
func Between(left, right *field.Field, leftIncluded, rightIncluded bool) Range {
	return Range{Left: left, Right: right, LeftIncluded: leftIncluded, RightIncluded: rightIncluded}
}

// IsUniversal reports whether the range imposes no constraint.
func (r Range) IsUniversal() bool {
	return r.Left == nil && r.Right == nil
}

// ContainsPoint reports whether v lies within the range.
func (r Range) ContainsPoint(v field.Field) bool {
	if r.Left != nil {
		c := field.Compare(v, *r.Left)
		if c < 0 || (c == 0 && !r.LeftIncluded) {
			return false
		}
	}
	if r.Right != nil {
		c := field.Compare(v, *r.Right)
		if c > 0 || (c == 0 && !r.RightIncluded) {
			return false
		}
	}
	return true
}

// Intersects reports whether r and other share at least one point.
func (r Range) Intersects(other Range) bool {
	// Empty if r's lower bound exceeds other's upper bound, or vice versa.
	if exceeds(r.Left, r.LeftIncluded, other.Right, other.RightIncluded) {
		return false
	}
	if exceeds(other.Left, other.LeftIncluded, r.Right, r.RightIncluded) {
		return false
	}
	return true
}

// exceeds reports whether lower (as a left bound, nil = -∞) is strictly
// above upper (as a right bound, nil = +∞), accounting for inclusivity:
// equal finite bounds only "exceed" when at least one side is exclusive.
func exceeds(lower *field.Field, lowerIncluded bool, upper *field.Field, upperIncluded bool) bool {
	if lower == nil || upper == nil {
		return false
	}
	c := field.Compare(*lower, *upper)
	if c > 0 {
		return true
	}
	if c == 0 && !(lowerIncluded && upperIncluded) {
		return true
	}
	return false
}

// Contains reports whether r fully encloses other.
func (r Range) Contains(other Range) bool {
	if r.Left != nil {
		if other.Left == nil {
			return false
		}
		c := field.Compare(*other.Left, *r.Left)
		if c < 0 || (c == 0 && r.LeftIncluded == false && other.LeftIncluded == true) {
			return false
		}
	}
	if r.Right != nil {
		if other.Right == nil {
			return false
		}
		c := field.Compare(*other.Right, *r.Right)
		if c > 0 || (c == 0 && r.RightIncluded == false && other.RightIncluded == true) {
			return false
		}
	}
	return true
}
