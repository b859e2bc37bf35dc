package alter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mergetree/internal/part"
)

// ConversionStream writes a type-changed column's converted content for
// one part to w. Supplying the actual cast/decompress/recompress pipeline
// is outside this package's scope (spec.md §4.6 step 4 treats it as a
// pluggable collaborator); a no-op or copy-through implementation is
// sufficient for columns whose on-disk bytes don't need reinterpreting.
type ConversionStream func(dir string, col part.Column, w *os.File) error

// Transaction is one in-flight alter of a single part directory.
type Transaction struct {
	Dir        string
	OldColumns part.ColumnList
	NewColumns part.ColumnList
	Plan       Plan
	Convert    ConversionStream
}

// dirLocks serializes commits against the same part directory; alters of
// different parts proceed independently.
var (
	dirLocksMu sync.Mutex
	dirLocks   = map[string]*sync.Mutex{}
)

func lockFor(dir string) *sync.Mutex {
	dirLocksMu.Lock()
	defer dirLocksMu.Unlock()
	m, ok := dirLocks[dir]
	if !ok {
		m = &sync.Mutex{}
		dirLocks[dir] = m
	}
	return m
}

// NewTransaction builds a Transaction, computing its Plan and checking the
// max-files sanity cap up front (spec.md §4.6 steps 1 and 3).
func NewTransaction(dir string, oldCols, newCols part.ColumnList, convert ConversionStream, maxFiles int, sanityEnabled bool) (*Transaction, error) {
	plan := BuildPlan(oldCols, newCols)
	if err := plan.CheckSanity(maxFiles, sanityEnabled); err != nil {
		return nil, err
	}
	return &Transaction{Dir: dir, OldColumns: oldCols, NewColumns: newCols, Plan: plan, Convert: convert}, nil
}

// commitEntry is one file this transaction's commit sequence touches.
type commitEntry struct {
	final string // path of the file as it will exist after commit
	tmp   string // path of the freshly written replacement, "" for a pure delete
}

// Commit streams conversions for every type-changed column, recomputes
// checksums and the column list, and then swaps everything into place
// under a per-directory lock using the crash-safe sequence from spec.md
// §4.6 step 6: for every entry, the existing target (if any) is first
// renamed to a .tmp2 fallback, the freshly written .tmp file is renamed
// into the target's place, and only then is .tmp2 removed. A crash between
// any two of those renames still leaves exactly one of {target, .tmp2}
// holding valid content.
func (tx *Transaction) Commit() error {
	mu := lockFor(tx.Dir)
	mu.Lock()
	defer mu.Unlock()

	var entries []commitEntry
	added := part.Checksums{}

	for file, target := range tx.Plan.Renames {
		if target == "" {
			entries = append(entries, commitEntry{final: file})
			continue
		}
		tmpPath := filepath.Join(tx.Dir, target+".tmp")
		col, ok := tx.NewColumns.ByName(columnNameForFile(tx.NewColumns, target))
		if !ok {
			return fmt.Errorf("alter: %s: no new column owns renamed file %s", tx.Dir, target)
		}
		if err := writeConversion(tmpPath, tx.Dir, col, tx.Convert); err != nil {
			return err
		}
		cs, err := part.HashFile(tmpPath)
		if err != nil {
			return err
		}
		added[target] = cs
		entries = append(entries, commitEntry{final: target, tmp: tmpPath})
	}

	newChecksums := part.Merge(loadBaseChecksums(tx.Dir), tx.Plan.Renames, added)
	columnsTmp := filepath.Join(tx.Dir, "columns.txt.tmp")
	if err := part.WriteColumnListTmp(columnsTmp, tx.NewColumns); err != nil {
		return err
	}
	entries = append(entries, commitEntry{final: "columns.txt", tmp: columnsTmp})

	checksumsTmp := filepath.Join(tx.Dir, "checksums.txt.tmp")
	if err := part.WriteChecksumsTmp(checksumsTmp, newChecksums); err != nil {
		return err
	}
	entries = append(entries, commitEntry{final: "checksums.txt", tmp: checksumsTmp})

	for _, e := range entries {
		if err := commitOne(tx.Dir, e); err != nil {
			return err
		}
	}
	return nil
}

// Rollback abandons the transaction. It does nothing to already-written
// .tmp files, and nothing else removes them either: they stay inside the
// part directory, where registry.DropTempDirectories (which only sweeps
// tmp_*/delete_tmp_* directories of the data directory) does not look.
func (tx *Transaction) Rollback() {}

func commitOne(dir string, e commitEntry) error {
	finalPath := filepath.Join(dir, e.final)
	tmp2Path := finalPath + ".tmp2"

	existed := false
	if _, err := os.Stat(finalPath); err == nil {
		existed = true
		if err := os.Rename(finalPath, tmp2Path); err != nil {
			return fmt.Errorf("alter: stage old %s: %w", finalPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("alter: stat %s: %w", finalPath, err)
	}

	if e.tmp != "" {
		if err := os.Rename(e.tmp, finalPath); err != nil {
			return fmt.Errorf("alter: commit %s: %w", finalPath, err)
		}
	}

	if existed {
		if err := os.Remove(tmp2Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("alter: remove %s: %w", tmp2Path, err)
		}
	}
	return nil
}

func writeConversion(tmpPath, dir string, col part.Column, convert ConversionStream) error {
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("alter: create %s: %w", tmpPath, err)
	}
	defer f.Close()
	if convert == nil {
		return nil
	}
	if err := convert(dir, col, f); err != nil {
		return fmt.Errorf("alter: convert column %s: %w", col.Name, err)
	}
	return f.Sync()
}

func loadBaseChecksums(dir string) part.Checksums {
	cs, err := part.LoadChecksums(dir)
	if err != nil || cs == nil {
		return part.Checksums{}
	}
	return cs
}

// columnNameForFile finds which new column a rewritten file name belongs
// to, by regenerating ColumnFiles for each candidate.
func columnNameForFile(cols part.ColumnList, file string) string {
	for _, c := range cols {
		for _, f := range part.ColumnFiles(c) {
			if f == file {
				return c.Name
			}
		}
	}
	return ""
}
