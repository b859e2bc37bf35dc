package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"mergetree/internal/core"
	"mergetree/internal/part"
)

// LoadOptions controls LoadFromDisk's tolerance for corruption, per
// spec §4.2/§4.3.
type LoadOptions struct {
	// RequirePartMetadata, when false, skips checksum recomputation and
	// trusts on-disk content once required files are structurally present.
	RequirePartMetadata bool
	// MaxSuspiciousBrokenParts caps how many broken parts LoadFromDisk
	// will quarantine before refusing to start (0 disables the cap).
	MaxSuspiciousBrokenParts int
	// DetachedDir is where QueueDetach parts are moved; defaults to
	// "<dataDir>/detached" when empty.
	DetachedDir string
}

// LoadReport summarizes one LoadFromDisk call.
type LoadReport struct {
	Active   int
	Detached []string
	Removed  []string
}

// LoadFromDisk scans dataDir for part directories, validates each one,
// collapses any pair where one part's range contains another's (the
// smaller is superseded and queued for removal), and quarantines broken
// parts per part.Classify before publishing the surviving set as active.
//
// Directories that fail to parse as part names (e.g. leftover tmp_*
// staging dirs from a crashed writer) are ignored here; clearing them is
// DropTempDirectories's job, run separately so a slow rm doesn't block
// startup.
func (r *Registry) LoadFromDisk(dataDir string, opts LoadOptions) (*LoadReport, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("registry: read data dir: %w", err)
	}

	var loaded []*part.DataPart
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "tmp_") || e.Name() == "detached" {
			continue
		}
		if _, err := core.ParsePartName(e.Name()); err != nil {
			continue
		}
		dp, err := part.Load(filepath.Join(dataDir, e.Name()))
		if err != nil {
			r.log.Warn("skipping unreadable part directory", zap.String("dir", e.Name()), zap.Error(err))
			continue
		}
		loaded = append(loaded, dp)
	}

	loaded = sortedByMinBlock(loaded)

	// Collapse contained parts: if a later (by our total order, which
	// sorts covering merge results after the smaller parts they replace
	// is NOT guaranteed) part's range contains an earlier one's, the
	// smaller part is superseded. We check both directions since the
	// on-disk set may include both a merge result and its still-present
	// sources after a crash mid-merge.
	superseded := make(map[*part.DataPart]bool)
	for i, a := range loaded {
		for j, b := range loaded {
			if i == j || superseded[b] {
				continue
			}
			if core.Contains(a.Name, b.Name) {
				superseded[b] = true
			}
		}
	}

	coveringCount := make(map[*part.DataPart]int)
	for _, a := range loaded {
		if superseded[a] {
			continue
		}
		for _, b := range loaded {
			if a == b {
				continue
			}
			if core.Contains(a.Name, b.Name) {
				coveringCount[b]++
			}
		}
	}

	report := &LoadReport{}
	detachedDir := opts.DetachedDir
	if detachedDir == "" {
		detachedDir = filepath.Join(dataDir, "detached")
	}

	assertLockOrder(lockLevelActive)
	r.activeMu.Lock()
	assertLockOrder(lockLevelAllKnown)
	r.allKnownMu.Lock()
	brokenSeen := 0
	for _, dp := range loaded {
		if superseded[dp] {
			dp.MarkObsolete(time.Now())
			r.attachKnownOnlyLocked(dp)
			report.Removed = append(report.Removed, dp.Name.String())
			continue
		}
		if err := dp.CheckNotBroken(opts.RequirePartMetadata); err != nil {
			brokenSeen++
			if opts.MaxSuspiciousBrokenParts > 0 && brokenSeen > opts.MaxSuspiciousBrokenParts {
				r.allKnownMu.Unlock()
				releaseLockOrder(lockLevelAllKnown)
				r.activeMu.Unlock()
				releaseLockOrder(lockLevelActive)
				return nil, fmt.Errorf("registry: too many broken parts found on disk (%d), refusing to start", brokenSeen)
			}
		}
		if dp.Broken() {
			switch part.Classify(dp, coveringCount[dp]) {
			case part.QueueRemoval:
				report.Removed = append(report.Removed, dp.Name.String())
				continue
			case part.QueueDetach:
				if err := detachBroken(dp, detachedDir); err != nil {
					r.log.Error("failed to detach broken part", zap.String("part", dp.Name.String()), zap.Error(err))
					continue
				}
				report.Detached = append(report.Detached, dp.Name.String())
				continue
			}
		}
		r.attachActiveLocked(dp)
		report.Active++
	}
	r.allKnownMu.Unlock()
	releaseLockOrder(lockLevelAllKnown)
	r.activeMu.Unlock()
	releaseLockOrder(lockLevelActive)

	return report, nil
}

func detachBroken(dp *part.DataPart, detachedDir string) error {
	if err := os.MkdirAll(detachedDir, 0o755); err != nil {
		return err
	}
	target := filepath.Join(detachedDir, "broken-on-start_"+dp.Name.String())
	return os.Rename(dp.Dir, target)
}
