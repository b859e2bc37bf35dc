package registry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"mergetree/internal/part"
)

// GrabOldParts removes from allKnown, and returns, every part that is
// obsolete, uniquely referenced (refcount 1, held only by the registry
// itself) and whose removal grace period has elapsed. Callers are
// responsible for actually unlinking the returned parts' directories.
//
// Only one grab runs at a time: a concurrent caller (e.g. a second timer
// tick firing before the first finished removing files) finds the lock
// held and returns immediately with no work, rather than blocking and
// duplicating the scan.
func (r *Registry) GrabOldParts(now time.Time, oldPartsLifetime time.Duration) []*part.DataPart {
	if !r.grabOldMu.TryLock() {
		return nil
	}
	defer r.grabOldMu.Unlock()

	assertLockOrder(lockLevelAllKnown)
	r.allKnownMu.Lock()
	defer func() { r.allKnownMu.Unlock(); releaseLockOrder(lockLevelAllKnown) }()

	var grabbed []*part.DataPart
	var keep []*part.DataPart
	r.allKnown.Ascend(func(dp *part.DataPart) bool {
		removeTime := dp.RemoveTime()
		if !removeTime.IsZero() && dp.RefCount() <= 1 && now.Sub(removeTime) >= oldPartsLifetime {
			grabbed = append(grabbed, dp)
		} else {
			keep = append(keep, dp)
		}
		return true
	})
	for _, dp := range grabbed {
		r.allKnown.Delete(dp)
	}
	return grabbed
}

// DropTempDirectories removes stale tmp_* and delete_tmp_* staging
// directories from dataDir that are older than olderThan — leftovers
// from a process that crashed mid-write, mid-merge or mid-alter before
// it could complete its rename sequence.
//
// Like GrabOldParts, this is a try-lock operation: a background sweep
// overlapping with an in-flight one is a no-op, not a wait.
func (r *Registry) DropTempDirectories(dataDir string, olderThan time.Duration) ([]string, error) {
	if !r.clearTempMu.TryLock() {
		return nil, nil
	}
	defer r.clearTempMu.Unlock()

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "tmp_") && !strings.HasPrefix(name, "delete_tmp_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(dataDir, name)
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn("failed to remove stale temp directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed = append(removed, name)
	}
	return removed, nil
}
