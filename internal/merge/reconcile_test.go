package merge

import (
	"testing"

	"mergetree/internal/field"
)

func TestReconcileOrdinaryPassesRowsThrough(t *testing.T) {
	rows := [][]field.Field{{field.UInt64(1)}, {field.UInt64(2)}}
	got, err := Reconcile(ModeOrdinary, rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows unchanged, got %d", len(got))
	}
}

func TestReconcileGraphiteFailsClosed(t *testing.T) {
	_, err := Reconcile(ModeGraphite, [][]field.Field{{field.UInt64(1)}})
	if err != ErrUnsupportedMergeMode {
		t.Fatalf("err = %v, want ErrUnsupportedMergeMode", err)
	}
}

func TestReconcileCollapsingCancelsOppositeSigns(t *testing.T) {
	rows := [][]field.Field{
		{field.UInt64(1), field.Int8(1)},
		{field.UInt64(1), field.Int8(-1)},
		{field.UInt64(2), field.Int8(1)},
	}
	got, err := Reconcile(ModeCollapsing, rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected key 1 to fully cancel, leaving 1 row, got %d", len(got))
	}
	if got[0][0].AsFloat64() != 2 {
		t.Fatalf("surviving row key = %v, want 2", got[0][0])
	}
}

func TestReconcileSummingAddsPayload(t *testing.T) {
	rows := [][]field.Field{
		{field.String("a"), field.Float64(3)},
		{field.String("a"), field.Float64(4)},
		{field.String("b"), field.Float64(1)},
	}
	got, err := Reconcile(ModeSumming, rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 grouped rows, got %d", len(got))
	}
	for _, r := range got {
		if r[0].AsString() == "a" && r[1].AsFloat64() != 7 {
			t.Fatalf("key a summed = %v, want 7", r[1].AsFloat64())
		}
	}
}

func TestReconcileReplacingKeepsHighestVersion(t *testing.T) {
	rows := [][]field.Field{
		{field.String("a"), field.UInt64(1)},
		{field.String("a"), field.UInt64(5)},
		{field.String("a"), field.UInt64(3)},
	}
	got, err := Reconcile(ModeReplacing, rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0][1].AsFloat64() != 5 {
		t.Fatalf("got %+v, want the version=5 row to survive alone", got)
	}
}
