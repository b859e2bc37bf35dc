package merge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mergetree/internal/core"
	"mergetree/internal/field"
	"mergetree/internal/part"
	"mergetree/internal/registry"
)

func writeTempPart(t *testing.T, dataDir, tempName string) string {
	t.Helper()
	dir := filepath.Join(dataDir, tempName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cols := part.ColumnList{{Name: "date", Type: "Date"}, {Name: "user_id", Type: "UInt64"}}
	if err := part.SaveColumnList(dir, cols); err != nil {
		t.Fatal(err)
	}
	if err := part.WritePrimaryIndexTmp(filepath.Join(dir, "primary.idx"), part.PrimaryIndex{
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
	return dir
}

func TestCommitInsertAllocatesNameAndPublishes(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.New(nil)
	c := New(reg, dataDir, BackpressureConfig{PartsToDelayInsert: 100, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}, nil)

	tmp := writeTempPart(t, dataDir, part.NewTempDirName())
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.CommitInsert(tmp, d, d)
	if err != nil {
		t.Fatal(err)
	}
	if res.ObsoleteOnArrival {
		t.Fatal("first insert should not be obsolete on arrival")
	}
	active := reg.ActiveParts()
	if len(active) != 1 || active[0].Name.MinBlock != 1 {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestCommitInsertRejectsNameConflict(t *testing.T) {
	dataDir := t.TempDir()
	// Pre-create the directory the first allocated block number would use.
	if err := os.MkdirAll(filepath.Join(dataDir, "20240301_20240301_1_1_0"), 0o755); err != nil {
		t.Fatal(err)
	}
	reg := registry.New(nil)
	c := New(reg, dataDir, BackpressureConfig{PartsToDelayInsert: 100, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}, nil)

	tmp := writeTempPart(t, dataDir, part.NewTempDirName())
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.CommitInsert(tmp, d, d); err == nil {
		t.Fatal("expected a name conflict error")
	}
}

func TestCommitMergeProducesCoveringPart(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.New(nil)
	c := New(reg, dataDir, BackpressureConfig{PartsToDelayInsert: 100, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}, nil)

	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tmp1 := writeTempPart(t, dataDir, part.NewTempDirName())
	if _, err := c.CommitInsert(tmp1, d, d); err != nil {
		t.Fatal(err)
	}
	tmp2 := writeTempPart(t, dataDir, part.NewTempDirName())
	if _, err := c.CommitInsert(tmp2, d, d); err != nil {
		t.Fatal(err)
	}

	inputs := reg.ActiveParts()
	if len(inputs) != 2 {
		t.Fatalf("expected 2 active parts before merge, got %d", len(inputs))
	}

	mergeTmp := writeTempPart(t, dataDir, part.NewTempDirName())
	res, err := c.CommitMerge(inputs, mergeTmp, ModeOrdinary)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Replaced) != 2 {
		t.Fatalf("replaced = %d, want 2", len(res.Replaced))
	}
	active := reg.ActiveParts()
	if len(active) != 1 || active[0].Name.Level != 1 {
		t.Fatalf("expected single level-1 covering part, got %+v", active)
	}
	if active[0].Name.MinBlock != inputs[0].Name.MinBlock || active[0].Name.MaxBlock != inputs[1].Name.MaxBlock {
		t.Fatalf("merge result block range = [%d,%d], want [%d,%d]",
			active[0].Name.MinBlock, active[0].Name.MaxBlock, inputs[0].Name.MinBlock, inputs[1].Name.MaxBlock)
	}
}

func TestBackpressureDelaysThenRejects(t *testing.T) {
	cfg := BackpressureConfig{PartsToDelayInsert: 5, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}
	delay, err := computeDelay(cfg, 7)
	if err != nil {
		t.Fatal(err)
	}
	if delay < 3*time.Millisecond || delay > 5*time.Millisecond {
		t.Fatalf("delay = %v, want ~4ms", delay)
	}

	_, err = computeDelay(cfg, 35)
	if err == nil {
		t.Fatal("expected rejection for a large excess")
	}
}

func TestAttachPartRejectsDuplicate(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.New(nil)
	c := New(reg, dataDir, BackpressureConfig{PartsToDelayInsert: 100, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}, nil)

	dir := writeTempPart(t, dataDir, "20240301_20240301_1_1_0")
	if _, err := c.AttachPart(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AttachPart(dir); err == nil {
		t.Fatal("expected duplicate attach to fail")
	}
}

func TestDetachPartRemovesFromActive(t *testing.T) {
	dataDir := t.TempDir()
	reg := registry.New(nil)
	c := New(reg, dataDir, BackpressureConfig{PartsToDelayInsert: 100, InsertDelayStep: 2, MaxDelayOfInsert: time.Second}, nil)

	dir := writeTempPart(t, dataDir, "20240301_20240301_1_1_0")
	dp, err := c.AttachPart(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.DetachPart(dp, "manual", false); err != nil {
		t.Fatal(err)
	}
	if len(reg.ActiveParts()) != 0 {
		t.Fatal("expected active set to be empty after detach")
	}
}

func TestSelectByTotalSizePicksLongestRunWithinBudget(t *testing.T) {
	mk := func(name string) *part.DataPart {
		n, err := core.ParsePartName(name)
		if err != nil {
			t.Fatal(err)
		}
		return &part.DataPart{Name: n, Checksums: part.Checksums{"x.bin": {Size: 10}}}
	}
	parts := []*part.DataPart{
		mk("20240301_20240301_1_1_0"),
		mk("20240301_20240301_2_2_0"),
		mk("20240301_20240301_3_3_0"),
	}
	got := SelectByTotalSize(parts, 25)
	if len(got) != 2 {
		t.Fatalf("expected a 2-part run within budget 25, got %d", len(got))
	}
}
