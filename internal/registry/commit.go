package registry

import (
	"time"

	"mergetree/internal/core"
	"mergetree/internal/part"
)

// CommitResult reports the effect a single Insert had on the active set.
type CommitResult struct {
	// Replaced lists active parts whose range the new part covers; they
	// have already been dropped from the active set and marked obsolete.
	Replaced []*part.DataPart
	// ObsoleteOnArrival is true when an existing active part already
	// covered the new part's range — the new part was recorded in
	// allKnown but never made active.
	ObsoleteOnArrival bool
}

// Insert publishes a part that the caller has already renamed into its
// final on-disk location (spec §4.5.1 steps 6-9). It is the C3 primitive
// the merge/insert coordinator (C5) builds its commit protocol on top of:
// Insert itself never allocates block numbers, never touches the
// filesystem and never retries — it only updates the in-memory sets and
// column-size accounting, atomically with respect to every other
// registry reader and writer.
func (r *Registry) Insert(dp *part.DataPart, now time.Time) *CommitResult {
	assertLockOrder(lockLevelActive)
	r.activeMu.Lock()
	defer func() { r.activeMu.Unlock(); releaseLockOrder(lockLevelActive) }()
	assertLockOrder(lockLevelAllKnown)
	r.allKnownMu.Lock()
	defer func() { r.allKnownMu.Unlock(); releaseLockOrder(lockLevelAllKnown) }()

	result := &CommitResult{}

	var covering *part.DataPart
	var replaced []*part.DataPart
	r.active.Ascend(func(existing *part.DataPart) bool {
		switch {
		case core.Contains(existing.Name, dp.Name):
			covering = existing
			return false
		case core.Contains(dp.Name, existing.Name):
			replaced = append(replaced, existing)
		}
		return true
	})

	if covering != nil {
		dp.MarkObsolete(now)
		r.attachKnownOnlyLocked(dp)
		result.ObsoleteOnArrival = true
		return result
	}

	for _, old := range replaced {
		old.MarkObsolete(now)
		r.removeActiveLocked(old)
	}
	result.Replaced = replaced

	r.attachActiveLocked(dp)
	return result
}
