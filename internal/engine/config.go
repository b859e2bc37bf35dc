// Package engine wires the registry, merge coordinator, and alter
// transactions into a single long-lived arena, plus the ambient concerns
// (config, logging, metrics, caching) a deployed instance needs around
// them.
package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"mergetree/internal/merge"
	"mergetree/internal/registry"
)

// Settings is the on-disk (TOML) configuration for one table's MergeTree
// instance. Field names mirror the tunables spec.md names explicitly;
// anything it leaves as an implementation default gets one here too.
type Settings struct {
	DataDir string `toml:"data_dir"`

	IndexGranularity int `toml:"index_granularity"`

	RequirePartMetadata      bool `toml:"require_part_metadata"`
	MaxSuspiciousBrokenParts int  `toml:"max_suspicious_broken_parts"`

	OldPartsLifetimeSeconds      int `toml:"old_parts_lifetime_seconds"`
	OldPartsLifetimeGraceSeconds int `toml:"old_parts_lifetime_grace_seconds"`

	PartsToDelayInsert int     `toml:"parts_to_delay_insert"`
	InsertDelayStep    float64 `toml:"insert_delay_step"`
	MaxDelayOfInsertMs int     `toml:"max_delay_of_insert_ms"`
	MaxPartsPerMonth   int     `toml:"max_parts_per_month"`

	MaxFilesToModifyInAlterColumns int  `toml:"max_files_to_modify_in_alter_columns"`
	AlterSanityCheckEnabled        bool `toml:"alter_sanity_check_enabled"`

	MergeSelectIntervalSeconds int   `toml:"merge_select_interval_seconds"`
	MergeBudgetBytes           int64 `toml:"merge_budget_bytes"`
	GCIntervalSeconds          int   `toml:"gc_interval_seconds"`

	MarkCacheSizeEntries       int `toml:"mark_cache_size_entries"`
	UncompressedCacheSizeBytes int `toml:"uncompressed_cache_size_bytes"`

	MetricsListenAddr string `toml:"metrics_listen_addr"`

	// MergeMode selects the row-reconciliation strategy mergeOnce applies
	// to the primary index it folds from its inputs: "ordinary" (default),
	// "collapsing", "summing", "replacing", or "graphite" (accepted at Open
	// by merge.ParseMode, but every merge under it fails with
	// merge.ErrUnsupportedMergeMode). Any other value is rejected at Open.
	MergeMode string `toml:"merge_mode"`
}

// DefaultSettings returns the settings a freshly created table starts
// with, before any TOML file is applied on top.
func DefaultSettings(dataDir string) Settings {
	return Settings{
		DataDir:                        dataDir,
		IndexGranularity:               8192,
		RequirePartMetadata:            true,
		MaxSuspiciousBrokenParts:       10,
		OldPartsLifetimeSeconds:        8 * 60,
		OldPartsLifetimeGraceSeconds:   60,
		PartsToDelayInsert:             150,
		InsertDelayStep:                1.1,
		MaxDelayOfInsertMs:             5 * 60 * 1000,
		MaxPartsPerMonth:               -1,
		MaxFilesToModifyInAlterColumns: 75,
		AlterSanityCheckEnabled:        true,
		MergeSelectIntervalSeconds:     5,
		MergeBudgetBytes:               1 << 30,
		GCIntervalSeconds:              60,
		MarkCacheSizeEntries:           5000,
		UncompressedCacheSizeBytes:     1 << 28,
		MetricsListenAddr:              "",
		MergeMode:                      "ordinary",
	}
}

// LoadSettings reads a TOML config file and applies it on top of
// DefaultSettings(dataDir), matching smf's BurntSushi/toml decode pattern.
func LoadSettings(path, dataDir string) (Settings, error) {
	s := DefaultSettings(dataDir)
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("engine: open config %q: %w", path, err)
	}
	defer f.Close()
	if _, err := toml.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("engine: decode config %q: %w", path, err)
	}
	return s, nil
}

func (s Settings) oldPartsLifetime() time.Duration {
	return time.Duration(s.OldPartsLifetimeSeconds) * time.Second
}

func (s Settings) loadOptions() registry.LoadOptions {
	return registry.LoadOptions{
		RequirePartMetadata:      s.RequirePartMetadata,
		MaxSuspiciousBrokenParts: s.MaxSuspiciousBrokenParts,
		DetachedDir:              s.DataDir + "/detached",
	}
}

func (s Settings) backpressureConfig() merge.BackpressureConfig {
	return merge.BackpressureConfig{
		PartsToDelayInsert: s.PartsToDelayInsert,
		InsertDelayStep:    s.InsertDelayStep,
		MaxDelayOfInsert:   time.Duration(s.MaxDelayOfInsertMs) * time.Millisecond,
	}
}
