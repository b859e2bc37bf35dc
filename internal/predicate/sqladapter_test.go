package predicate

import (
	"testing"

	"mergetree/internal/field"
)

func TestParseWhereSimpleComparison(t *testing.T) {
	e, err := ParseWhere("user_id > 100")
	if err != nil {
		t.Fatal(err)
	}
	call, ok := e.(*Call)
	if !ok || call.Name != FnGreater {
		t.Fatalf("expected a greater-than call, got %#v", e)
	}
	col, ok := call.Args[0].(*Column)
	if !ok || col.Name != "user_id" {
		t.Fatalf("expected column user_id, got %#v", call.Args[0])
	}
	lit, ok := call.Args[1].(*Const)
	if !ok || lit.Value.AsFloat64() != 100 {
		t.Fatalf("expected literal 100, got %#v", call.Args[1])
	}
}

func TestParseWhereAndChain(t *testing.T) {
	e, err := ParseWhere("date = '2024-03-15' AND user_id > 100")
	if err != nil {
		t.Fatal(err)
	}
	call, ok := e.(*Call)
	if !ok || call.Name != OpAnd {
		t.Fatalf("expected an AND call, got %#v", e)
	}
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 AND operands, got %d", len(call.Args))
	}
}

func TestParseWhereFunctionWrappedColumn(t *testing.T) {
	e, err := ParseWhere("toStartOfHour(ts) >= 1000")
	if err != nil {
		t.Fatal(err)
	}
	call, ok := e.(*Call)
	if !ok || call.Name != FnGreaterOrEquals {
		t.Fatalf("expected a >= call, got %#v", e)
	}
	wrapped, ok := call.Args[0].(*Call)
	if !ok || wrapped.Name != "toStartOfHour" {
		t.Fatalf("expected a wrapped function call, got %#v", call.Args[0])
	}
}

func TestParseWhereIn(t *testing.T) {
	e, err := ParseWhere("user_id IN (1, 2, 3)")
	if err != nil {
		t.Fatal(err)
	}
	call, ok := e.(*Call)
	if !ok || call.Name != FnIn {
		t.Fatalf("expected an IN call, got %#v", e)
	}
	set, ok := call.Args[1].(*SetLiteral)
	if !ok || len(set.Values) != 3 {
		t.Fatalf("expected a 3-element set, got %#v", call.Args[1])
	}
	if !field.Equal(set.Values[0], field.Int64(1)) {
		t.Fatalf("unexpected first set value: %+v", set.Values[0])
	}
}

func TestParseWhereLike(t *testing.T) {
	e, err := ParseWhere("name LIKE 'abc%'")
	if err != nil {
		t.Fatal(err)
	}
	call, ok := e.(*Call)
	if !ok || call.Name != FnLike {
		t.Fatalf("expected a LIKE call, got %#v", e)
	}
}
