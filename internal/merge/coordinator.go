// Package merge implements C5, the insert/merge coordinator: the commit
// protocol that turns a temporary directory into a named, registered
// part, insert backpressure, and attach/detach of externally placed part
// directories.
package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mergetree/internal/core"
	"mergetree/internal/part"
	"mergetree/internal/registry"
)

var (
	// ErrNameConflict is returned when a part with the computed final name
	// already exists on disk (spec.md §4.5.1 step 4).
	ErrNameConflict = errors.New("merge: a part with this name already exists")
	// ErrDuplicatePart is returned by AttachPart when the registry already
	// knows a part by that exact name.
	ErrDuplicatePart = errors.New("merge: part is already known to the registry")
)

// Coordinator drives the commit protocol described in spec.md §4.5.1 on
// top of a registry.Registry. It owns the monotonic block-number counter
// and serializes commits so that block-number allocation and the
// resulting registry insert happen as one atomic step, relative to other
// commits and to merge selection (spec.md §4.5.1 step 2's requirement).
type Coordinator struct {
	reg     *registry.Registry
	dataDir string
	cfg     BackpressureConfig
	log     *zap.Logger

	commitMu     sync.Mutex
	blockCounter atomic.Int64

	// sleep is time.Sleep by default; overridable in tests so backpressure
	// delays don't make the test suite slow.
	sleep func(time.Duration)
}

// New creates a Coordinator. dataDir is the table's part directory; temp
// directories are expected to already live under it (part.NewTempDirName
// names them, the caller is responsible for placing one there before
// calling CommitInsert).
func New(reg *registry.Registry, dataDir string, cfg BackpressureConfig, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{reg: reg, dataDir: dataDir, cfg: cfg, log: log, sleep: time.Sleep}
}

// CommitInsert implements spec.md §4.5.1 for a freshly written temp part:
// it allocates a block number, composes the level-0 name, renames the
// temp directory into place, loads it, and publishes it through the
// registry.
func (c *Coordinator) CommitInsert(tempDir string, leftDate, rightDate time.Time) (*registry.CommitResult, error) {
	partition := core.PartitionOf(leftDate)
	if delay, err := computeDelay(c.cfg, c.reg.MaxActivePartsInAnyPartition()); err != nil {
		return nil, err
	} else if delay > 0 {
		c.log.Warn("insert delayed by backpressure", zap.Duration("delay", delay), zap.String("partition", string(partition)))
		c.sleep(delay)
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	b := c.blockCounter.Add(1)
	name := core.PartName{LeftDate: leftDate, RightDate: rightDate, MinBlock: b, MaxBlock: b, Level: 0}
	return c.commitNamed(tempDir, name)
}

// CommitMerge implements spec.md §4.5.1 for a merge result: the name's
// range spans its inputs and its level is one above the highest input
// level. inputs must be the exact contiguous run a SelectionPolicy chose.
// mode is the table's configured row-reconciliation strategy; the caller
// is expected to have already folded tempDir's content with Reconcile,
// but CommitMerge rejects ModeGraphite itself too, so a tempDir built for
// an unsupported mode can never reach the registry even if the caller
// skipped that step.
func (c *Coordinator) CommitMerge(inputs []*part.DataPart, tempDir string, mode Mode) (*registry.CommitResult, error) {
	if mode == ModeGraphite {
		return nil, ErrUnsupportedMergeMode
	}
	if len(inputs) < 2 {
		return nil, fmt.Errorf("merge: CommitMerge needs at least 2 inputs, got %d", len(inputs))
	}
	first, last := inputs[0], inputs[len(inputs)-1]
	maxLevel := int32(0)
	for _, in := range inputs {
		if in.Name.Level > maxLevel {
			maxLevel = in.Name.Level
		}
	}
	name := core.PartName{
		LeftDate:  first.Name.LeftDate,
		RightDate: last.Name.RightDate,
		MinBlock:  first.Name.MinBlock,
		MaxBlock:  last.Name.MaxBlock,
		Level:     maxLevel + 1,
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	return c.commitNamed(tempDir, name)
}

// commitNamed performs steps 3-9 of the commit protocol; callers hold
// commitMu.
func (c *Coordinator) commitNamed(tempDir string, name core.PartName) (*registry.CommitResult, error) {
	finalDir := filepath.Join(c.dataDir, name.String())
	if _, err := os.Stat(finalDir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrNameConflict, name)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("merge: stat %s: %w", finalDir, err)
	}

	if err := os.Rename(tempDir, finalDir); err != nil {
		return nil, fmt.Errorf("merge: commit rename %s -> %s: %w", tempDir, finalDir, err)
	}

	dp, err := part.Load(finalDir)
	if err != nil {
		return nil, fmt.Errorf("merge: load committed part %s: %w", finalDir, err)
	}

	result := c.reg.Insert(dp, time.Now())
	if result.ObsoleteOnArrival {
		c.log.Info("part obsolete on arrival", zap.String("part", name.String()))
	} else {
		c.log.Info("part committed", zap.String("part", name.String()), zap.Int("replaced", len(result.Replaced)))
	}
	return result, nil
}

// AttachPart registers an externally placed, already-named part directory,
// refusing a part whose name the registry already knows (spec.md §4.5.4).
func (c *Coordinator) AttachPart(dir string) (*part.DataPart, error) {
	name, err := core.ParsePartName(filepath.Base(dir))
	if err != nil {
		return nil, fmt.Errorf("merge: attach %s: %w", dir, err)
	}
	for _, known := range c.reg.AllKnownParts() {
		if core.Equal(known.Name, name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePart, name)
		}
	}
	dp, err := part.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("merge: attach %s: %w", dir, err)
	}
	c.reg.Insert(dp, time.Now())
	return dp, nil
}

// DetachPart removes dp from the registry and renames its directory out of
// the active namespace, optionally restoring any parts it had superseded
// (spec.md §4.5.4).
func (c *Coordinator) DetachPart(dp *part.DataPart, prefix string, restoreCovered bool) ([]*part.DataPart, error) {
	detachedDir := filepath.Join(c.dataDir, "detached")
	return c.reg.RenameAndDetach(dp, detachedDir, prefix, restoreCovered)
}

// PlanMerge exposes the active set of one partition, ordered by
// min_block, to a SelectionPolicy (spec.md §4.5.3).
func (c *Coordinator) PlanMerge(partition core.PartitionID, budget int64, policy SelectionPolicy) []*part.DataPart {
	return policy(c.reg.ActivePartsInPartition(partition), budget)
}
