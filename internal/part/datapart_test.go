package part

import (
	"os"
	"path/filepath"
	"testing"

	"mergetree/internal/core"
	"mergetree/internal/field"
)

func mustParseName(t *testing.T, s string) core.PartName {
	t.Helper()
	n, err := core.ParsePartName(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// writeFakePart builds a minimal, valid part directory for Load/CheckNotBroken
// tests: a two-column schema, one byte of content per column file, and an
// empty primary index.
func writeFakePart(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cols := ColumnList{{Name: "date", Type: "Date"}, {Name: "user_id", Type: "UInt64"}}
	if err := SaveColumnList(dir, cols); err != nil {
		t.Fatal(err)
	}
	if err := WritePrimaryIndexTmp(filepath.Join(dir, primaryIndexFileName), PrimaryIndex{
		Rows: [][]field.Field{{field.String("2024-03-01"), field.UInt64(1)}},
	}); err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, c := range cols {
		for _, f := range ColumnFiles(c) {
			p := filepath.Join(dir, f)
			if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
			files = append(files, f)
		}
	}
	cs, err := ComputeChecksums(dir, files)
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveChecksums(dir, cs); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadAndCheckNotBroken(t *testing.T) {
	root := t.TempDir()
	dir := writeFakePart(t, root, "20240301_20240301_1_1_0")

	dp, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if dp.Name.MinBlock != 1 || dp.Name.MaxBlock != 1 {
		t.Fatalf("unexpected name: %+v", dp.Name)
	}
	if err := dp.CheckNotBroken(true); err != nil {
		t.Fatalf("expected healthy part, got %v", err)
	}
	if dp.Broken() {
		t.Fatal("should not be marked broken")
	}
}

func TestCheckNotBrokenDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	dir := writeFakePart(t, root, "20240301_20240301_1_1_0")
	dp, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "user_id.bin"), []byte("corrupted-data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := dp.CheckNotBroken(true); err == nil {
		t.Fatal("expected corruption to be detected")
	}
	if !dp.Broken() {
		t.Fatal("expected part to be marked broken")
	}
}

func TestLoadRejectsMissingColumnFile(t *testing.T) {
	root := t.TempDir()
	dir := writeFakePart(t, root, "20240301_20240301_1_1_0")
	if err := os.Remove(filepath.Join(dir, "user_id.bin")); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected Load to fail on missing column file")
	}
}

func TestClassifyBrokenPart(t *testing.T) {
	root := t.TempDir()

	fresh := &DataPart{Name: mustParseName(t, "20240301_20240301_1_1_0"), broken: true}
	if got := Classify(fresh, 0); got != QueueRemoval {
		t.Fatalf("level-0 broken part should be queued for removal, got %v", got)
	}

	merged := &DataPart{Name: mustParseName(t, "20240301_20240331_1_5_1"), broken: true}
	if got := Classify(merged, 2); got != QueueRemoval {
		t.Fatalf("broken merge result covered by >=2 parts should be queued for removal, got %v", got)
	}
	if got := Classify(merged, 1); got != QueueDetach {
		t.Fatalf("orphan broken merge result should be queued for detach, got %v", got)
	}

	healthy := &DataPart{Name: mustParseName(t, "20240301_20240301_1_1_0"), broken: false}
	if got := Classify(healthy, 0); got != NotBroken {
		t.Fatalf("healthy part should classify as NotBroken, got %v", got)
	}
	_ = root
}

func TestRefCountAndObsolete(t *testing.T) {
	dp := &DataPart{}
	dp.refCount.Store(1)
	dp.Acquire()
	if dp.RefCount() != 2 {
		t.Fatalf("refcount = %d, want 2", dp.RefCount())
	}
	dp.Release()
	dp.Release()
	if dp.RefCount() != 0 {
		t.Fatalf("refcount = %d, want 0", dp.RefCount())
	}
	if !dp.RemoveTime().IsZero() {
		t.Fatal("fresh part should have zero RemoveTime")
	}
}
