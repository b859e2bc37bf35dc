package part

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mergetree/internal/core"
)

// State is the visibility state of a part, per spec §3 "Lifecycles".
type State int32

const (
	StateTemporary State = iota
	StateActive
	StateObsolete
	StateDeleting
)

// BrokenClass is the outcome of classifying a part whose integrity check
// failed, per spec §4.2.
type BrokenClass int

const (
	// NotBroken means the part passed its checks.
	NotBroken BrokenClass = iota
	// QueueRemoval: level 0 (nothing to recover from) or covered by two
	// or more other parts (inputs are still present elsewhere).
	QueueRemoval
	// QueueDetach: an orphan merge result. Moved to detached/ for manual
	// resolution rather than silently dropped.
	QueueDetach
)

// DataPart is one immutable on-disk part, loaded into memory.
type DataPart struct {
	Name      core.PartName
	Dir       string
	Columns   ColumnList
	Checksums Checksums
	Index     PrimaryIndex
	ModTime   time.Time

	// removeTimeUnixNano is 0 while the part is active; set (via atomic
	// store) to the time it became obsolete. A *time.Time field would
	// race under the registry's read-while-reader-holds-handle pattern,
	// so it is stored as an atomic int64 instead.
	removeTimeUnixNano atomic.Int64

	// refCount models the shared ownership spec §3 describes: the
	// registry's strong reference plus any in-flight reader's shared
	// handle. Load starts it at 1, the registry's own reference; a part is
	// only physically removable once no reader holds it, i.e. the count is
	// back to 1 (checked by the registry's GrabOldParts, §4.3).
	refCount atomic.Int32

	broken bool
}

// NewTempDirName returns a directory name of the form tmp_<uuid>, unique
// across concurrent inserts and merges before either has been assigned a
// block number (spec §3, "temporary → active"). google/uuid is already a
// transitive dependency of this pack (pulled in by several retrieved
// repos' docker/testcontainers stacks); it is promoted here to a direct,
// exercised one rather than hand-rolling a random suffix.
func NewTempDirName() string {
	return "tmp_" + uuid.NewString()
}

// RequiredFiles returns the set of files §6 requires for every part,
// independent of its column list.
func RequiredFiles() []string {
	return []string{columnsFileName, primaryIndexFileName}
}

// ColumnFiles returns the .bin/.mrk file names a column contributes.
func ColumnFiles(c Column) []string {
	esc := EscapeFileName(c.Name)
	files := []string{esc + ".bin", esc + ".mrk"}
	if strings.HasPrefix(c.Type, "Array(") {
		files = append(files, esc+".size0.bin", esc+".size0.mrk")
	}
	return files
}

// Load opens a part directory: reads columns.txt, checksums.txt (if
// present), primary.idx, and records the directory's modification time.
// It does not, by itself, verify checksums — that is CheckNotBroken's job,
// gated by policy (spec §4.2).
func Load(dir string) (*DataPart, error) {
	name, err := core.ParsePartName(filepath.Base(dir))
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("part: stat %s: %w", dir, err)
	}

	cols, err := LoadColumnList(dir)
	if err != nil {
		return nil, err
	}
	cs, err := LoadChecksums(dir)
	if err != nil {
		return nil, err
	}
	idx, err := LoadPrimaryIndex(filepath.Join(dir, primaryIndexFileName))
	if err != nil {
		return nil, err
	}

	for _, req := range RequiredFiles() {
		if _, err := os.Stat(filepath.Join(dir, req)); err != nil {
			return nil, fmt.Errorf("part: %s: missing required file %s: %w", dir, req, err)
		}
	}
	for _, c := range cols {
		for _, f := range ColumnFiles(c) {
			if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
				return nil, fmt.Errorf("part: %s: missing column file %s: %w", dir, f, err)
			}
		}
	}

	dp := &DataPart{
		Name:      name,
		Dir:       dir,
		Columns:   cols,
		Checksums: cs,
		Index:     idx,
		ModTime:   st.ModTime(),
	}
	dp.refCount.Store(1)
	return dp, nil
}

// CheckNotBroken verifies the part's integrity to a policy-controlled
// strictness. When requirePartMetadata is true and checksums.txt exists,
// every listed file's size and checksum are recomputed and compared. Open
// Question (spec §9): when requirePartMetadata is false (or checksums.txt
// is absent), CheckNotBroken checks nothing; the only checks left are the
// file-existence checks Load already ran. File sizes are not checked.
func (dp *DataPart) CheckNotBroken(requirePartMetadata bool) error {
	if !requirePartMetadata || dp.Checksums == nil {
		return nil
	}
	if err := dp.Checksums.Verify(dp.Dir); err != nil {
		dp.broken = true
		return fmt.Errorf("part: %s: %w", dp.Dir, err)
	}
	return nil
}

// Broken reports whether the last CheckNotBroken call found corruption.
func (dp *DataPart) Broken() bool { return dp.broken }

// Classify implements spec §4.2's broken-part policy: a freshly inserted
// part (level 0) has nothing to recover from, so it is dropped outright;
// a merge result covered by two or more surviving parts is redundant with
// data that is still present, so it is also dropped; anything else is an
// orphan and must be quarantined for a human to resolve.
func Classify(dp *DataPart, coveringPartCount int) BrokenClass {
	if !dp.broken {
		return NotBroken
	}
	if dp.Name.Level == 0 {
		return QueueRemoval
	}
	if coveringPartCount >= 2 {
		return QueueRemoval
	}
	return QueueDetach
}

// MarkObsolete records the moment a part stopped being visible to new
// queries (spec §3: "becomes obsolete when a containing part is
// activated").
func (dp *DataPart) MarkObsolete(at time.Time) {
	dp.removeTimeUnixNano.Store(at.UnixNano())
}

// RemoveTime returns the obsolescence time, or the zero Time if the part
// is still active.
func (dp *DataPart) RemoveTime() time.Time {
	ns := dp.removeTimeUnixNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// UnmarkObsolete clears the obsolescence time, restoring a part to the
// "active" state. Used when a covering part is detached and the parts it
// had superseded need to be reinstated to close the resulting gap (spec
// §4.3, rename_and_detach's restore_covered option).
func (dp *DataPart) UnmarkObsolete() {
	dp.removeTimeUnixNano.Store(0)
}

// ReplaceMetadata overwrites dp's schema and content metadata with
// other's, leaving identity (Name, Dir) and lifecycle state (refCount,
// removeTimeUnixNano, broken) untouched. Used after an in-place ALTER
// reloads the rewritten directory: other is a throwaway DataPart built
// by Load purely to pick up the new Columns/Checksums/Index, and a plain
// struct copy would also overwrite dp's atomic fields — go vet flags that
// as copying a lock value, and it would reset any in-flight reader's
// shared refcount out from under it.
func (dp *DataPart) ReplaceMetadata(other *DataPart) {
	dp.Columns = other.Columns
	dp.Checksums = other.Checksums
	dp.Index = other.Index
	dp.ModTime = other.ModTime
}

// Acquire increments the shared-reader refcount; Release decrements it.
// A part becomes eligible for physical deletion once the refcount is back
// to 1 (only the registry's reference) AND its grace period has elapsed
// (spec §3, §4.3).
func (dp *DataPart) Acquire()        { dp.refCount.Add(1) }
func (dp *DataPart) Release()        { dp.refCount.Add(-1) }
func (dp *DataPart) RefCount() int32 { return dp.refCount.Load() }

// SizeBytes sums the sizes recorded in the part's checksums, one proxy for
// its on-disk footprint used by the column-size accounting in C3 and the
// merge-budget selection in C5.
func (dp *DataPart) SizeBytes() int64 {
	var total int64
	for _, cs := range dp.Checksums {
		total += cs.Size
	}
	return total
}

// ColumnSizeBytes sums the size of one column's contributed files.
func (dp *DataPart) ColumnSizeBytes(columnName string) int64 {
	var total int64
	col, ok := dp.Columns.ByName(columnName)
	if !ok {
		return 0
	}
	for _, f := range ColumnFiles(col) {
		total += dp.Checksums[f].Size
	}
	return total
}
