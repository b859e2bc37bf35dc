// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mergetree/internal/condition"
	"mergetree/internal/core"
	"mergetree/internal/engine"
	"mergetree/internal/field"
	"mergetree/internal/part"
	"mergetree/internal/predicate"
)

type partsFlags struct {
	dataDir string
	all     bool
}

type mergeFlags struct {
	dataDir   string
	partition string
}

type insertFlags struct {
	dataDir string
	tempDir string
	date    string
}

type alterFlags struct {
	dataDir string
	part    string
	drop    []string
}

type explainFlags struct {
	dataDir string
	key     string
	where   string
	left    string
	right   string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mergetreectl",
		Short: "Inspect and drive a MergeTree-style storage engine instance",
	}

	rootCmd.AddCommand(partsCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(insertCmd())
	rootCmd.AddCommand(alterCmd())
	rootCmd.AddCommand(explainCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openArena(dataDir string) (*engine.Arena, error) {
	settings := engine.DefaultSettings(dataDir)
	a, _, err := engine.Open(settings, nil, prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataDir, err)
	}
	return a, nil
}

func partsCmd() *cobra.Command {
	flags := &partsFlags{}
	cmd := &cobra.Command{
		Use:   "parts",
		Short: "List active (or all-known) parts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runParts(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", ".", "Table data directory")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Include obsolete parts still known to the registry")
	return cmd
}

func runParts(cmd *cobra.Command, flags *partsFlags) error {
	a, err := openArena(flags.dataDir)
	if err != nil {
		return err
	}
	parts := a.Registry().ActiveParts()
	if flags.all {
		parts = a.Registry().AllKnownParts()
	}
	out := cmd.OutOrStdout()
	for _, dp := range parts {
		fmt.Fprintf(out, "%s\tlevel=%d\trows_index=%d\tsize=%d\n",
			dp.Name.String(), dp.Name.Level, len(dp.Index.Rows), dp.SizeBytes())
	}
	return nil
}

func mergeCmd() *cobra.Command {
	flags := &mergeFlags{}
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Force a merge of one partition's active parts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", ".", "Table data directory")
	cmd.Flags().StringVarP(&flags.partition, "partition", "p", "", "Partition id, YYYYMM")
	_ = cmd.MarkFlagRequired("partition")
	return cmd
}

func runMerge(cmd *cobra.Command, flags *mergeFlags) error {
	a, err := openArena(flags.dataDir)
	if err != nil {
		return err
	}
	merged, err := a.ForceMerge(core.PartitionID(flags.partition))
	if err != nil {
		return fmt.Errorf("merge partition %s: %w", flags.partition, err)
	}
	if !merged {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing to merge in partition %s\n", flags.partition)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged partition %s\n", flags.partition)
	return nil
}

func insertCmd() *cobra.Command {
	flags := &insertFlags{}
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Commit a prepared temp directory as a new part",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInsert(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", ".", "Table data directory")
	cmd.Flags().StringVar(&flags.tempDir, "temp-dir", "", "Path to the prepared temp part directory")
	cmd.Flags().StringVar(&flags.date, "date", "", "Date (YYYY-MM-DD) the block belongs to")
	_ = cmd.MarkFlagRequired("temp-dir")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func runInsert(cmd *cobra.Command, flags *insertFlags) error {
	a, err := openArena(flags.dataDir)
	if err != nil {
		return err
	}
	d, err := time.Parse("2006-01-02", flags.date)
	if err != nil {
		return fmt.Errorf("parse --date: %w", err)
	}
	result, err := a.Coordinator().CommitInsert(flags.tempDir, d, d)
	if err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	if result.ObsoleteOnArrival {
		fmt.Fprintln(cmd.OutOrStdout(), "inserted part was obsolete on arrival")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "committed, replaced %d part(s)\n", len(result.Replaced))
	return nil
}

func alterCmd() *cobra.Command {
	flags := &alterFlags{}
	cmd := &cobra.Command{
		Use:   "alter",
		Short: "Drop columns from one part, in place",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlter(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", ".", "Table data directory")
	cmd.Flags().StringVar(&flags.part, "part", "", "Exact part name to alter")
	cmd.Flags().StringSliceVar(&flags.drop, "drop-column", nil, "Column name to drop (repeatable)")
	_ = cmd.MarkFlagRequired("part")
	return cmd
}

func runAlter(cmd *cobra.Command, flags *alterFlags) error {
	a, err := openArena(flags.dataDir)
	if err != nil {
		return err
	}
	var target *part.DataPart
	for _, dp := range a.Registry().AllKnownParts() {
		if dp.Name.String() == flags.part {
			target = dp
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no known part named %s", flags.part)
	}

	drop := make(map[string]bool, len(flags.drop))
	for _, c := range flags.drop {
		drop[c] = true
	}
	var newCols part.ColumnList
	for _, c := range target.Columns {
		if !drop[c.Name] {
			newCols = append(newCols, c)
		}
	}

	if err := a.ApplyAlter(target, newCols, nil); err != nil {
		return fmt.Errorf("alter %s: %w", flags.part, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "altered %s, now %d column(s)\n", flags.part, len(newCols))
	return nil
}

func explainCmd() *cobra.Command {
	flags := &explainFlags{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the compiled RPN for a WHERE clause and evaluate it over a key range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplain(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dataDir, "data-dir", "d", ".", "Table data directory (unused, kept for symmetry with other subcommands)")
	cmd.Flags().StringVar(&flags.key, "key", "", "Comma-separated primary key column names, in order")
	cmd.Flags().StringVar(&flags.where, "where", "", "WHERE-clause predicate to compile")
	cmd.Flags().StringVar(&flags.left, "left", "", "Comma-separated left key bound, same order as --key")
	cmd.Flags().StringVar(&flags.right, "right", "", "Comma-separated right key bound, same order as --key")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("where")
	return cmd
}

func runExplain(cmd *cobra.Command, flags *explainFlags) error {
	expr, err := predicate.ParseWhere(flags.where)
	if err != nil {
		return fmt.Errorf("parse WHERE clause: %w", err)
	}
	keyColumns := strings.Split(flags.key, ",")
	pkc := condition.Build(expr, keyColumns, condition.DefaultRegistry())

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, pkc.Explain())
	fmt.Fprintf(out, "max_key_column=%d always_unknown_or_true=%v\n", pkc.MaxKeyColumn(), pkc.AlwaysUnknownOrTrue())

	if flags.left == "" && flags.right == "" {
		return nil
	}
	left := parseFieldList(flags.left)
	right := parseFieldList(flags.right)
	ok, err := pkc.MayBeTrueInRange(left, right, len(left) > 0, len(right) > 0)
	if err != nil {
		return fmt.Errorf("evaluate range: %w", err)
	}
	fmt.Fprintf(out, "may_be_true_in_range=%v\n", ok)
	return nil
}

func parseFieldList(s string) []field.Field {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]field.Field, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, field.Int64(n))
			continue
		}
		out = append(out, field.String(p))
	}
	return out
}
