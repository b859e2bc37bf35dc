package part

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChecksumsRoundTripAndVerify(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "user_id.bin"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	cs, err := ComputeChecksums(dir, []string{"user_id.bin"})
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveChecksums(dir, cs); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadChecksums(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded["user_id.bin"] != cs["user_id.bin"] {
		t.Fatalf("round-trip mismatch: %+v vs %+v", loaded, cs)
	}
	if err := loaded.Verify(dir); err != nil {
		t.Fatalf("verify should pass: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "user_id.bin"), []byte("corrupted!!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Verify(dir); err == nil {
		t.Fatal("expected verify to fail after corruption")
	}
}

func TestLoadChecksumsMissingFileIsOptional(t *testing.T) {
	dir := t.TempDir()
	cs, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("missing checksums.txt should not be an error: %v", err)
	}
	if cs != nil {
		t.Fatalf("expected nil checksums, got %+v", cs)
	}
}

func TestMergeChecksums(t *testing.T) {
	base := Checksums{
		"a.bin": {Size: 10, Hash: 1},
		"b.bin": {Size: 20, Hash: 2},
		"c.bin": {Size: 30, Hash: 3},
	}
	renames := map[string]string{
		"a.bin": "a2.bin", // pure rename, content unchanged
		"b.bin": "",       // deleted
	}
	added := Checksums{
		"a2.bin": {Size: 10, Hash: 1}, // unchanged content under new name
		"d.bin":  {Size: 40, Hash: 4}, // converted column, fresh content
	}
	merged := Merge(base, renames, added)

	if _, ok := merged["a.bin"]; ok {
		t.Fatal("old name a.bin should be gone")
	}
	if _, ok := merged["b.bin"]; ok {
		t.Fatal("deleted file b.bin should be gone")
	}
	if merged["a2.bin"].Hash != 1 {
		t.Fatal("a2.bin should carry the renamed checksum")
	}
	if merged["c.bin"].Size != 30 {
		t.Fatal("untouched file c.bin should be retained as-is")
	}
	if merged["d.bin"].Hash != 4 {
		t.Fatal("added file d.bin should be present")
	}
}
