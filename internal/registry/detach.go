package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"mergetree/internal/core"
	"mergetree/internal/part"
)

// RenameAndDetach removes dp from the active and allKnown sets and moves
// its directory under detachedDir as "<prefix>_<name>" (spec §4.3). When
// restoreCovered is true and dp had previously superseded other parts
// still recorded in allKnown, those parts are reactivated so detaching dp
// does not leave the partition with a hole in the visible range — this is
// what lets `ALTER TABLE ... DETACH PART` on a merge result fall back to
// that merge's still-present sources.
func (r *Registry) RenameAndDetach(dp *part.DataPart, detachedDir, prefix string, restoreCovered bool) ([]*part.DataPart, error) {
	assertLockOrder(lockLevelActive)
	r.activeMu.Lock()
	defer func() { r.activeMu.Unlock(); releaseLockOrder(lockLevelActive) }()
	assertLockOrder(lockLevelAllKnown)
	r.allKnownMu.Lock()
	defer func() { r.allKnownMu.Unlock(); releaseLockOrder(lockLevelAllKnown) }()

	if _, ok := r.active.Get(dp); ok {
		r.removeActiveLocked(dp)
	}
	r.allKnown.Delete(dp)

	var restored []*part.DataPart
	if restoreCovered {
		var candidates []*part.DataPart
		r.allKnown.Ascend(func(other *part.DataPart) bool {
			if other == dp {
				return true
			}
			if core.Contains(dp.Name, other.Name) && !other.RemoveTime().IsZero() {
				candidates = append(candidates, other)
			}
			return true
		})
		for _, c := range candidates {
			if _, err := os.Stat(c.Dir); err != nil {
				continue
			}
			c.UnmarkObsolete()
			r.attachActiveLocked(c)
			restored = append(restored, c)
		}
	}

	if err := os.MkdirAll(detachedDir, 0o755); err != nil {
		return restored, fmt.Errorf("registry: detach %s: %w", dp.Name, err)
	}
	name := dp.Name.String()
	if prefix != "" {
		name = prefix + "_" + name
	}
	target := filepath.Join(detachedDir, name)
	if err := os.Rename(dp.Dir, target); err != nil {
		return restored, fmt.Errorf("registry: detach %s: %w", dp.Name, err)
	}
	return restored, nil
}
