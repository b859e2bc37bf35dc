package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mergetree/internal/alter"
	"mergetree/internal/core"
	"mergetree/internal/field"
	"mergetree/internal/merge"
	"mergetree/internal/part"
	"mergetree/internal/registry"
)

// Arena owns one table's worth of MergeTree state: the registry, the
// insert/merge coordinator built on top of it, the caches and metrics
// both read, and the background worker that keeps merges and GC running
// without a caller having to drive them by hand.
type Arena struct {
	settings  Settings
	log       *zap.Logger
	reg       *registry.Registry
	coord     *merge.Coordinator
	caches    *Caches
	metrics   *Metrics
	mergeMode merge.Mode

	selectionPolicy merge.SelectionPolicy

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Open loads a table's parts from disk and returns a ready-to-use Arena.
// The background worker is not started; call Run for that.
func Open(settings Settings, log *zap.Logger, promReg prometheus.Registerer) (*Arena, *registry.LoadReport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("engine: create data dir %s: %w", settings.DataDir, err)
	}
	if err := os.MkdirAll(filepath.Join(settings.DataDir, "detached"), 0o755); err != nil {
		return nil, nil, fmt.Errorf("engine: create detached dir: %w", err)
	}

	reg := registry.New(log)
	report, err := reg.LoadFromDisk(settings.DataDir, settings.loadOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("engine: load %s: %w", settings.DataDir, err)
	}

	caches, err := NewCaches(settings.MarkCacheSizeEntries, settings.UncompressedCacheSizeBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: init caches: %w", err)
	}

	metrics := NewMetrics(promReg)
	metrics.BrokenPartsDetected.Add(float64(len(report.Detached) + len(report.Removed)))

	coord := merge.New(reg, settings.DataDir, settings.backpressureConfig(), log)

	mode, err := merge.ParseMode(settings.MergeMode)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}

	return &Arena{
		settings:        settings,
		log:             log,
		reg:             reg,
		coord:           coord,
		caches:          caches,
		metrics:         metrics,
		mergeMode:       mode,
		selectionPolicy: merge.SelectByTotalSize,
	}, report, nil
}

// Registry, Coordinator and Caches expose the Arena's collaborators to
// callers that need direct access (the CLI's parts/merge/alter/explain
// subcommands, tests).
func (a *Arena) Registry() *registry.Registry    { return a.reg }
func (a *Arena) Coordinator() *merge.Coordinator { return a.coord }
func (a *Arena) Caches() *Caches                 { return a.caches }
func (a *Arena) Settings() Settings              { return a.settings }

// SetSelectionPolicy overrides the merge-selection hook the background
// worker uses; tests and the CLI's merge subcommand can substitute their
// own.
func (a *Arena) SetSelectionPolicy(p merge.SelectionPolicy) { a.selectionPolicy = p }

// Run starts the background worker loop: periodic merge selection and
// periodic GC (GrabOldParts + DropTempDirectories), both running until ctx
// is cancelled or Shutdown is called. It blocks until the worker has
// stopped, so callers typically invoke it in its own goroutine.
func (a *Arena) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go a.mergeLoop(ctx)
	go a.gcLoop(ctx)
	a.wg.Wait()
}

// Shutdown signals the background worker to stop and waits for it to
// finish its current iteration, per spec.md §5's shutdown-flag polling
// requirement.
func (a *Arena) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Arena) mergeLoop(ctx context.Context) {
	defer a.wg.Done()
	interval := time.Duration(a.settings.MergeSelectIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runOneMergeRound()
		}
	}
}

// ForceMerge selects and commits one merge for the given partition right
// now, bypassing the background ticker. It reports (false, nil) when the
// selection policy found nothing worth merging.
func (a *Arena) ForceMerge(partition core.PartitionID) (bool, error) {
	chosen := a.coord.PlanMerge(partition, a.settings.MergeBudgetBytes, a.selectionPolicy)
	if len(chosen) < 2 {
		return false, nil
	}
	if err := a.mergeOnce(chosen); err != nil {
		a.metrics.MergesFailedTotal.Inc()
		return false, err
	}
	a.metrics.MergesPerformedTotal.Inc()
	return true, nil
}

func (a *Arena) runOneMergeRound() {
	for _, partition := range a.activePartitions() {
		a.metrics.ActivePartsInPartition.WithLabelValues(string(partition)).
			Set(float64(len(a.reg.ActivePartsInPartition(partition))))

		chosen := a.coord.PlanMerge(partition, a.settings.MergeBudgetBytes, a.selectionPolicy)
		if len(chosen) < 2 {
			continue
		}
		if err := a.mergeOnce(chosen); err != nil {
			a.metrics.MergesFailedTotal.Inc()
			a.log.Warn("merge failed", zap.String("partition", string(partition)), zap.Error(err))
			continue
		}
		a.metrics.MergesPerformedTotal.Inc()
	}
}

// mergeOnce merges inputs into a freshly named part: the primary index
// rows of every input are combined and folded through merge.Reconcile
// per the table's configured Mode, and each column's real compressed
// blocks are re-read from the first input and re-written (fresh marks,
// freshly compressed) rather than copied byte-for-byte, so a merge always
// produces self-consistent block/mark pairs even though the actual
// per-row column-value fold a collapsing/summing engine applies to the
// column data itself is still the query engine's job, one layer up.
func (a *Arena) mergeOnce(inputs []*part.DataPart) error {
	tempDir := filepath.Join(a.settings.DataDir, part.NewTempDirName())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return err
	}
	if err := part.SaveColumnList(tempDir, inputs[0].Columns); err != nil {
		return err
	}

	var combinedRows [][]field.Field
	for _, in := range inputs {
		combinedRows = append(combinedRows, in.Index.Rows...)
	}
	reconciled, err := merge.Reconcile(a.mergeMode, combinedRows)
	if err != nil {
		return err
	}
	if err := part.WritePrimaryIndexTmp(filepath.Join(tempDir, "primary.idx"), part.PrimaryIndex{Rows: reconciled}); err != nil {
		return err
	}

	var files []string
	for _, c := range inputs[0].Columns {
		pairs := part.ColumnFiles(c)
		for i := 0; i+1 < len(pairs); i += 2 {
			binName, mrkName := pairs[i], pairs[i+1]
			if err := part.RewriteColumnFile(
				filepath.Join(inputs[0].Dir, binName), filepath.Join(inputs[0].Dir, mrkName),
				filepath.Join(tempDir, binName), filepath.Join(tempDir, mrkName),
			); err != nil {
				return err
			}
			files = append(files, binName, mrkName)
		}
	}
	cs, err := part.ComputeChecksums(tempDir, files)
	if err != nil {
		return err
	}
	if err := part.SaveChecksums(tempDir, cs); err != nil {
		return err
	}

	result, err := a.coord.CommitMerge(inputs, tempDir, a.mergeMode)
	if err != nil {
		return err
	}
	for _, r := range result.Replaced {
		a.caches.InvalidatePart(r.Name.String())
	}
	return nil
}

func (a *Arena) activePartitions() []core.PartitionID {
	seen := map[core.PartitionID]bool{}
	var out []core.PartitionID
	for _, dp := range a.reg.ActiveParts() {
		p := dp.Name.Partition()
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (a *Arena) gcLoop(ctx context.Context) {
	defer a.wg.Done()
	interval := time.Duration(a.settings.GCIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runOneGCRound()
		}
	}
}

func (a *Arena) runOneGCRound() {
	grabbed := a.reg.GrabOldParts(time.Now(), a.settings.oldPartsLifetime())
	for _, dp := range grabbed {
		if err := os.RemoveAll(dp.Dir); err != nil {
			a.log.Warn("failed to remove garbage-collected part", zap.String("dir", dp.Dir), zap.Error(err))
			continue
		}
		a.caches.InvalidatePart(dp.Name.String())
		a.metrics.PartsGCed.Inc()
	}

	grace := time.Duration(a.settings.OldPartsLifetimeGraceSeconds) * time.Second
	removed, err := a.reg.DropTempDirectories(a.settings.DataDir, grace)
	if err != nil {
		a.log.Warn("failed to sweep temp directories", zap.Error(err))
		return
	}
	for _, dir := range removed {
		a.log.Info("removed stale temp directory", zap.String("dir", dir))
	}
}

// ApplyAlter runs an alter transaction against one active part, publishing
// the result in place (the part's name and registry identity are
// unchanged; only its files are rewritten).
func (a *Arena) ApplyAlter(dp *part.DataPart, newColumns part.ColumnList, convert alter.ConversionStream) error {
	if convert == nil {
		convert = DefaultConversionStream
	}
	tx, err := alter.NewTransaction(dp.Dir, dp.Columns, newColumns,
		convert, a.settings.MaxFilesToModifyInAlterColumns, a.settings.AlterSanityCheckEnabled)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	reloaded, err := part.Load(dp.Dir)
	if err != nil {
		return fmt.Errorf("engine: reload %s after alter: %w", dp.Dir, err)
	}
	dp.ReplaceMetadata(reloaded)
	a.caches.InvalidatePart(dp.Name.String())
	return nil
}
