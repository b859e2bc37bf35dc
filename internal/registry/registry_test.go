package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mergetree/internal/field"
	"mergetree/internal/part"
)

// writePart builds a minimal valid part directory named name under root and
// loads it, mirroring the on-disk layout internal/part's own tests build.
func writePart(t *testing.T, root, name string) *part.DataPart {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cols := part.ColumnList{{Name: "date", Type: "Date"}, {Name: "user_id", Type: "UInt64"}}
	if err := part.SaveColumnList(dir, cols); err != nil {
		t.Fatal(err)
	}
	idxPath := filepath.Join(dir, "primary.idx")
	if err := part.WritePrimaryIndexTmp(idxPath, part.PrimaryIndex{
		Rows: [][]field.Field{{field.String("2024-03-01"), field.UInt64(1)}},
	}); err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, c := range cols {
		for _, f := range part.ColumnFiles(c) {
			p := filepath.Join(dir, f)
			if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
			files = append(files, f)
		}
	}
	cs, err := part.ComputeChecksums(dir, files)
	if err != nil {
		t.Fatal(err)
	}
	if err := part.SaveChecksums(dir, cs); err != nil {
		t.Fatal(err)
	}
	dp, err := part.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dp
}

func TestInsertAndCommitReplacesCoveredParts(t *testing.T) {
	root := t.TempDir()
	r := New(nil)

	a := writePart(t, root, "20240301_20240301_1_1_0")
	b := writePart(t, root, "20240301_20240301_2_2_0")
	r.Insert(a, time.Now())
	r.Insert(b, time.Now())

	if got := len(r.ActiveParts()); got != 2 {
		t.Fatalf("active parts = %d, want 2", got)
	}

	merged := writePart(t, root, "20240301_20240301_1_2_1")
	res := r.Insert(merged, time.Now())
	if res.ObsoleteOnArrival {
		t.Fatal("merged part should not be obsolete on arrival")
	}
	if len(res.Replaced) != 2 {
		t.Fatalf("replaced = %d, want 2", len(res.Replaced))
	}

	active := r.ActiveParts()
	if len(active) != 1 || active[0].Name.String() != merged.Name.String() {
		t.Fatalf("expected only the merge result active, got %+v", active)
	}
	if len(r.AllKnownParts()) != 3 {
		t.Fatalf("all-known should retain superseded parts until GC, got %d", len(r.AllKnownParts()))
	}
}

func TestInsertObsoleteOnArrival(t *testing.T) {
	root := t.TempDir()
	r := New(nil)

	covering := writePart(t, root, "20240301_20240301_1_2_1")
	r.Insert(covering, time.Now())

	late := writePart(t, root, "20240301_20240301_1_1_0")
	res := r.Insert(late, time.Now())
	if !res.ObsoleteOnArrival {
		t.Fatal("expected the late, already-covered part to arrive obsolete")
	}
	if got := len(r.ActiveParts()); got != 1 {
		t.Fatalf("active parts = %d, want 1", got)
	}
	if got := len(r.AllKnownParts()); got != 2 {
		t.Fatalf("all-known parts = %d, want 2", got)
	}
}

func TestColumnSizeAccounting(t *testing.T) {
	root := t.TempDir()
	r := New(nil)
	a := writePart(t, root, "20240301_20240301_1_1_0")
	r.Insert(a, time.Now())

	want := a.ColumnSizeBytes("user_id")
	if got := r.ColumnSizeBytes("user_id"); got != want {
		t.Fatalf("column size = %d, want %d", got, want)
	}

	if _, err := r.RenameAndDetach(a, filepath.Join(root, "detached"), "", false); err != nil {
		t.Fatal(err)
	}
	if got := r.ColumnSizeBytes("user_id"); got != 0 {
		t.Fatalf("column size after detach = %d, want 0", got)
	}
}

func TestLoadFromDiskCollapsesSupersededParts(t *testing.T) {
	root := t.TempDir()
	writePart(t, root, "20240301_20240301_1_1_0")
	writePart(t, root, "20240301_20240301_2_2_0")
	writePart(t, root, "20240301_20240301_1_2_1")

	r := New(nil)
	report, err := r.LoadFromDisk(root, LoadOptions{RequirePartMetadata: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Active != 1 {
		t.Fatalf("active = %d, want 1", report.Active)
	}
	if len(report.Removed) != 2 {
		t.Fatalf("removed = %d, want 2", len(report.Removed))
	}
	active := r.ActiveParts()
	if len(active) != 1 || active[0].Name.Level != 1 {
		t.Fatalf("expected only the level-1 merge result active, got %+v", active)
	}
}

func TestGrabOldPartsRespectsRefcountAndLifetime(t *testing.T) {
	root := t.TempDir()
	r := New(nil)
	a := writePart(t, root, "20240301_20240301_1_1_0")
	b := writePart(t, root, "20240301_20240301_2_2_0")
	r.Insert(a, time.Now())
	r.Insert(b, time.Now())

	merged := writePart(t, root, "20240301_20240301_1_2_1")
	res := r.Insert(merged, time.Now().Add(-time.Hour))
	if len(res.Replaced) != 2 {
		t.Fatalf("replaced = %d, want 2", len(res.Replaced))
	}

	a.Acquire() // simulate an in-flight reader still holding a
	grabbed := r.GrabOldParts(time.Now(), time.Minute)
	if len(grabbed) != 1 || grabbed[0].Name.String() != b.Name.String() {
		t.Fatalf("expected only b to be grabbed, got %+v", grabbed)
	}
	if got := len(r.AllKnownParts()); got != 2 {
		t.Fatalf("all-known = %d, want 2 (merged + still-referenced a)", got)
	}
}

func TestDropTempDirectoriesRemovesStaleOnes(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "tmp_stale")
	fresh := filepath.Join(root, "tmp_fresh")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(fresh, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	removed, err := r.DropTempDirectories(root, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "tmp_stale" {
		t.Fatalf("removed = %+v, want [tmp_stale]", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh tmp dir should survive")
	}
}

func TestRenameAndDetachRestoresCoveredParts(t *testing.T) {
	root := t.TempDir()
	r := New(nil)
	a := writePart(t, root, "20240301_20240301_1_1_0")
	b := writePart(t, root, "20240301_20240301_2_2_0")
	r.Insert(a, time.Now())
	r.Insert(b, time.Now())

	merged := writePart(t, root, "20240301_20240301_1_2_1")
	r.Insert(merged, time.Now())

	restored, err := r.RenameAndDetach(merged, filepath.Join(root, "detached"), "", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored = %d, want 2", len(restored))
	}
	active := r.ActiveParts()
	if len(active) != 2 {
		t.Fatalf("active after restore = %d, want 2", len(active))
	}
}
