package condition

import (
	"testing"
	"time"

	"mergetree/internal/field"
	"mergetree/internal/predicate"
)

func unixTime(s string) int64 {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t.Unix()
}

func eq(col, lit string) *predicate.Call {
	return &predicate.Call{Name: predicate.FnEquals, Args: []predicate.Expr{
		&predicate.Column{Name: col}, &predicate.Const{Value: field.String(lit)},
	}}
}

func gtInt(col string, v int64) *predicate.Call {
	return &predicate.Call{Name: predicate.FnGreater, Args: []predicate.Expr{
		&predicate.Column{Name: col}, &predicate.Const{Value: field.Int64(v)},
	}}
}

func TestPrefixPruning(t *testing.T) {
	// Primary key (date, user_id); predicate: date = '2024-03-15' AND user_id > 100.
	expr := &predicate.Call{Name: predicate.OpAnd, Args: []predicate.Expr{
		eq("date", "2024-03-15"),
		gtInt("user_id", 100),
	}}
	c := Build(expr, []string{"date", "user_id"}, DefaultRegistry())

	const maxUserID = int64(1) << 40

	cases := []struct {
		name        string
		left, right []field.Field
		want        bool
	}{
		{
			"range entirely before the date",
			[]field.Field{field.String("2024-03-10"), field.Int64(0)},
			[]field.Field{field.String("2024-03-12"), field.Int64(maxUserID)},
			false,
		},
		{
			"matching date but user_id prefix below threshold",
			[]field.Field{field.String("2024-03-15"), field.Int64(0)},
			[]field.Field{field.String("2024-03-15"), field.Int64(50)},
			false,
		},
		{
			"matching date and user_id straddling threshold",
			[]field.Field{field.String("2024-03-15"), field.Int64(50)},
			[]field.Field{field.String("2024-03-15"), field.Int64(200)},
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.MayBeTrueInRange(tc.left, tc.right, true, true)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("MayBeTrueInRange() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMonotonicChainTransformsKeyRange(t *testing.T) {
	// Predicate: toStartOfHour(ts) >= 2024-03-15 10:00:00, single-column key "ts"
	// (ts stored as Unix-seconds, ClickHouse's own DateTime representation).
	ge := &predicate.Call{Name: predicate.FnGreaterOrEquals, Args: []predicate.Expr{
		&predicate.Call{Name: "toStartOfHour", Args: []predicate.Expr{&predicate.Column{Name: "ts"}}},
		&predicate.Const{Value: field.Int64(unixTime("2024-03-15 10:00:00"))},
	}}
	c := Build(ge, []string{"ts"}, DefaultRegistry())

	before := field.Int64(unixTime("2024-03-15 09:00:00"))
	beforeEnd := field.Int64(unixTime("2024-03-15 09:59:59"))
	got, err := c.MayBeTrueInRange([]field.Field{before}, []field.Field{beforeEnd}, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("hour-09 range should not satisfy ts-hour >= 10:00")
	}

	within := field.Int64(unixTime("2024-03-15 10:00:00"))
	withinEnd := field.Int64(unixTime("2024-03-15 10:59:59"))
	got, err = c.MayBeTrueInRange([]field.Field{within}, []field.Field{withinEnd}, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("hour-10 range should satisfy ts-hour >= 10:00")
	}
}

func TestNonMonotonicChainDegradesToUnknown(t *testing.T) {
	eqHash := &predicate.Call{Name: predicate.FnEquals, Args: []predicate.Expr{
		&predicate.Call{Name: "intHash32", Args: []predicate.Expr{&predicate.Column{Name: "user_id"}}},
		&predicate.Const{Value: field.UInt32(42)},
	}}
	c := Build(eqHash, []string{"user_id"}, DefaultRegistry())

	got, err := c.MayBeTrueInRange(
		[]field.Field{field.Int64(0)}, []field.Field{field.Int64(1000)}, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("a non-monotonic chain should conservatively report true")
	}
}

func TestAlwaysUnknownOrTrue(t *testing.T) {
	c := Build(&predicate.Column{Name: "unrelated"}, []string{"date"}, DefaultRegistry())
	if !c.AlwaysUnknownOrTrue() {
		t.Fatal("an unrecognized predicate node should collapse to UNKNOWN")
	}
}

func TestMaxKeyColumn(t *testing.T) {
	expr := &predicate.Call{Name: predicate.OpAnd, Args: []predicate.Expr{
		eq("date", "2024-03-15"),
		gtInt("user_id", 100),
	}}
	c := Build(expr, []string{"date", "user_id"}, DefaultRegistry())
	if c.MaxKeyColumn() != 1 {
		t.Fatalf("max key column = %d, want 1", c.MaxKeyColumn())
	}
}
