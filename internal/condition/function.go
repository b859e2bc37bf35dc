package condition

import (
	"time"

	"mergetree/internal/field"
)

// Monotonicity is the answer a Function gives for one query interval, per
// spec.md §4.4.2: whether it is monotonic at all over that interval, and
// if so whether it preserves (positive) or reverses (negative) order.
type Monotonicity struct {
	IsMonotonic bool
	IsPositive  bool
}

// Function is a single-argument scalar function that may wrap a primary
// key column in a WHERE predicate (e.g. toMonday(date), intHash32(id)).
type Function interface {
	Name() string
	Execute(v field.Field) field.Field
	// MonotonicityOn reports this function's monotonicity over [left, right].
	// Either bound may be nil, meaning unbounded on that side.
	MonotonicityOn(left, right *field.Field) Monotonicity
}

// Registry maps function names to their Function implementation, used
// while walking a monotonic chain during atom construction.
type Registry map[string]Function

// DefaultRegistry returns the built-in functions used by the seed
// scenarios: identity, toStartOfHour, toMonday (all monotonic) and
// intHash32 (deliberately not, to exercise the UNKNOWN-degeneration path).
func DefaultRegistry() Registry {
	return Registry{
		"identity":      identityFn{},
		"toStartOfHour": toStartOfHourFn{},
		"toMonday":      toMondayFn{},
		"intHash32":     intHash32Fn{},
	}
}

func (r Registry) Lookup(name string) (Function, bool) {
	f, ok := r[name]
	return f, ok
}

type identityFn struct{}

func (identityFn) Name() string                      { return "identity" }
func (identityFn) Execute(v field.Field) field.Field { return v }
func (identityFn) MonotonicityOn(*field.Field, *field.Field) Monotonicity {
	return Monotonicity{IsMonotonic: true, IsPositive: true}
}

// toStartOfHourFn truncates a UNIX-seconds timestamp (stored as a UInt64
// or Int64 field) down to the start of its hour. Always monotonic (ties
// within the same hour are fine: monotonic only needs non-decreasing).
type toStartOfHourFn struct{}

func (toStartOfHourFn) Name() string { return "toStartOfHour" }

func (toStartOfHourFn) Execute(v field.Field) field.Field {
	secs := int64(v.AsFloat64())
	truncated := secs - secs%3600
	return field.Int64(truncated)
}

func (toStartOfHourFn) MonotonicityOn(*field.Field, *field.Field) Monotonicity {
	return Monotonicity{IsMonotonic: true, IsPositive: true}
}

// toMondayFn truncates a date string ("YYYY-MM-DD") down to the Monday of
// its week. Monotonic for the same reason toStartOfHour is.
type toMondayFn struct{}

func (toMondayFn) Name() string { return "toMonday" }

func (toMondayFn) Execute(v field.Field) field.Field {
	t, err := time.Parse("2006-01-02", v.AsString())
	if err != nil {
		return v
	}
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	monday := t.AddDate(0, 0, -offset)
	return field.String(monday.Format("2006-01-02"))
}

func (toMondayFn) MonotonicityOn(*field.Field, *field.Field) Monotonicity {
	return Monotonicity{IsMonotonic: true, IsPositive: true}
}

// intHash32Fn is a stand-in for a hash function: by construction it has no
// order-preserving relationship to its input, so it always reports
// non-monotonic. Any atom built on a chain containing it must degenerate
// to UNKNOWN (spec.md §4.4.2).
type intHash32Fn struct{}

func (intHash32Fn) Name() string { return "intHash32" }

func (intHash32Fn) Execute(v field.Field) field.Field {
	n := uint32(int64(v.AsFloat64()))
	n = ((n >> 16) ^ n) * 0x45d9f3b
	n = ((n >> 16) ^ n) * 0x45d9f3b
	n = (n >> 16) ^ n
	return field.UInt32(n)
}

func (intHash32Fn) MonotonicityOn(*field.Field, *field.Field) Monotonicity {
	return Monotonicity{IsMonotonic: false}
}
