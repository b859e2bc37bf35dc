// Package registry implements C3: the in-memory part registry. It tracks
// two overlapping sets — active (what queries see) and allKnown (active
// plus obsolete-but-not-yet-reaped) — under two distinct mutexes, acquired
// in the documented order active -> allKnown -> columnSizes, never
// inverted (spec §5, §9). Every exported method takes and releases its own
// locks; callers never see a torn view and never need to lock anything
// themselves.
package registry

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"

	"mergetree/internal/core"
	"mergetree/internal/part"
)

const btreeDegree = 32

func less(a, b *part.DataPart) bool {
	return core.Less(a.Name, b.Name)
}

// Registry is the part registry described in spec §4.3.
type Registry struct {
	activeMu sync.RWMutex
	active   *btree.BTreeG[*part.DataPart]

	allKnownMu sync.RWMutex
	allKnown   *btree.BTreeG[*part.DataPart]

	sizesMu     sync.Mutex
	columnSizes map[string]int64

	grabOldMu   sync.Mutex
	clearTempMu sync.Mutex

	log *zap.Logger
}

// New creates an empty registry. log may be nil, in which case a no-op
// logger is used.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		active:      btree.NewG(btreeDegree, less),
		allKnown:    btree.NewG(btreeDegree, less),
		columnSizes: make(map[string]int64),
		log:         log,
	}
}

// ActiveParts returns the active set in registry order (partition,
// min_block, max_block, level).
func (r *Registry) ActiveParts() []*part.DataPart {
	assertLockOrder(lockLevelActive)
	r.activeMu.RLock()
	defer func() { r.activeMu.RUnlock(); releaseLockOrder(lockLevelActive) }()
	return ascend(r.active)
}

// AllKnownParts returns active ∪ obsolete-but-not-yet-removed, in order.
func (r *Registry) AllKnownParts() []*part.DataPart {
	assertLockOrder(lockLevelAllKnown)
	r.allKnownMu.RLock()
	defer func() { r.allKnownMu.RUnlock(); releaseLockOrder(lockLevelAllKnown) }()
	return ascend(r.allKnown)
}

func ascend(t *btree.BTreeG[*part.DataPart]) []*part.DataPart {
	out := make([]*part.DataPart, 0, t.Len())
	t.Ascend(func(p *part.DataPart) bool {
		out = append(out, p)
		return true
	})
	return out
}

// ActivePartsInPartition returns the active parts of one partition, in
// block-number order — the view C5's merge-selection hook iterates.
func (r *Registry) ActivePartsInPartition(p core.PartitionID) []*part.DataPart {
	all := r.ActiveParts()
	out := all[:0:0]
	for _, dp := range all {
		if dp.Name.Partition() == p {
			out = append(out, dp)
		}
	}
	return out
}

// MaxActivePartsInAnyPartition returns the size of the largest single
// partition's active-part count — the figure C5's backpressure check
// (spec §4.5.2) compares against parts_to_delay_insert.
func (r *Registry) MaxActivePartsInAnyPartition() int {
	assertLockOrder(lockLevelActive)
	r.activeMu.RLock()
	defer func() { r.activeMu.RUnlock(); releaseLockOrder(lockLevelActive) }()
	counts := make(map[core.PartitionID]int)
	max := 0
	r.active.Ascend(func(p *part.DataPart) bool {
		c := counts[p.Name.Partition()] + 1
		counts[p.Name.Partition()] = c
		if c > max {
			max = c
		}
		return true
	})
	return max
}

// ColumnSizeBytes returns the accounted byte total for one column across
// all currently active parts.
func (r *Registry) ColumnSizeBytes(column string) int64 {
	assertLockOrder(lockLevelSizes)
	r.sizesMu.Lock()
	defer func() { r.sizesMu.Unlock(); releaseLockOrder(lockLevelSizes) }()
	return r.columnSizes[column]
}

func (r *Registry) adjustColumnSizes(dp *part.DataPart, sign int64) {
	assertLockOrder(lockLevelSizes)
	r.sizesMu.Lock()
	defer func() { r.sizesMu.Unlock(); releaseLockOrder(lockLevelSizes) }()
	for _, c := range dp.Columns {
		r.columnSizes[c.Name] += sign * dp.ColumnSizeBytes(c.Name)
	}
}

// attachActiveLocked inserts dp into both sets and updates accounting.
// Callers must hold activeMu and allKnownMu (in that order) or know no
// other writer can interleave (e.g. during LoadFromDisk before the
// registry is published).
func (r *Registry) attachActiveLocked(dp *part.DataPart) {
	r.active.ReplaceOrInsert(dp)
	r.allKnown.ReplaceOrInsert(dp)
	r.adjustColumnSizes(dp, 1)
}

// attachKnownOnlyLocked records a part as known but not active (obsolete
// on arrival, or a covered/removed part retained for its grace period).
func (r *Registry) attachKnownOnlyLocked(dp *part.DataPart) {
	r.allKnown.ReplaceOrInsert(dp)
}

// removeActiveLocked drops dp from active (but not allKnown) and reverses
// its contribution to column-size accounting.
func (r *Registry) removeActiveLocked(dp *part.DataPart) {
	r.active.Delete(dp)
	r.adjustColumnSizes(dp, -1)
}

// sortedByMinBlock returns a copy of parts in registry order (partition,
// min_block, max_block, level); LoadFromDisk uses it before collapsing.
func sortedByMinBlock(parts []*part.DataPart) []*part.DataPart {
	out := append([]*part.DataPart(nil), parts...)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
