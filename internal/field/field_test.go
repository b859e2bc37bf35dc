package field

import "testing"

func TestCompareCrossWidthIntegers(t *testing.T) {
	cases := []struct {
		name string
		a, b Field
		want int
	}{
		{"uint8 vs uint64 equal", UInt8(200), UInt64(200), 0},
		{"int8 negative vs uint64", Int8(-1), UInt64(5), -1},
		{"uint32 vs int64 larger", UInt32(4000000000), Int64(10), 1},
		{"two negatives", Int16(-500), Int8(-10), -1},
		{"float vs int exact", Float64(10.0), Int32(10), 0},
		{"float vs int less", Float32(9.5), Int32(10), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.a, tc.b); got != tc.want {
				t.Fatalf("Compare(%v,%v) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestEqualNull(t *testing.T) {
	if !Equal(Null(), Null()) {
		t.Fatal("Null should equal Null")
	}
	if Equal(Null(), Int32(0)) {
		t.Fatal("Null should not equal zero")
	}
}

func TestCompareTuple(t *testing.T) {
	a := Tuple(String("2024-03-15"), Int64(100))
	b := Tuple(String("2024-03-15"), Int64(200))
	if Compare(a, b) >= 0 {
		t.Fatal("expected a < b")
	}
}

func TestCompareArrayLengthTiebreak(t *testing.T) {
	a := Array(Int32(1), Int32(2))
	b := Array(Int32(1), Int32(2), Int32(3))
	if Compare(a, b) >= 0 {
		t.Fatal("shorter prefix-equal array should compare less")
	}
}
