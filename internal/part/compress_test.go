package part

import (
	"bytes"
	"testing"
)

func TestCompressBlockRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	compressed := CompressBlock(raw)
	if len(compressed) >= len(raw) {
		t.Fatalf("expected compression to shrink repetitive data: %d >= %d", len(compressed), len(raw))
	}
	got, err := DecompressBlock(compressed, len(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("round-trip mismatch")
	}
}

func TestEscapeFileName(t *testing.T) {
	if EscapeFileName("user_id") != "user_id" {
		t.Fatal("plain identifiers should pass through")
	}
	if got := EscapeFileName("a.b"); got == "a.b" {
		t.Fatal("dot should be escaped")
	}
}
