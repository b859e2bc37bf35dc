package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mergetree/internal/field"
	"mergetree/internal/part"
)

// DefaultConversionStream is the alter.ConversionStream ApplyAlter falls
// back to when a caller doesn't supply a domain-specific cast. Since it
// has no actual type-cast logic to apply, it round-trips a column's
// existing content through the same decode/encode/compress pipeline a
// real cast would sit in the middle of: every block the old file holds is
// read back as rows, concatenated with Drain, and written out again as a
// single freshly compressed block (and, on the paired .mrk call, the one
// mark that locates it). This keeps a type-change rewrite that supplies
// no converter honest about what it touched, instead of leaving the
// column behind empty.
//
// alter.Transaction.Commit invokes this once per renamed file — once for
// the .bin target, once for the .mrk target — with no shared state and no
// ordering guarantee between the two calls (spec.md §4.6 step 4 treats
// the renamed-file map as unordered). w.Name() is used to tell which
// target is being written, since the callback signature itself doesn't
// say.
func DefaultConversionStream(dir string, col part.Column, w *os.File) error {
	base := strings.TrimSuffix(filepath.Base(w.Name()), ".tmp")
	stem := strings.TrimSuffix(strings.TrimSuffix(base, ".bin"), ".mrk")

	blocks, err := part.ReadBlocksFromFiles(
		filepath.Join(dir, stem+".bin"),
		filepath.Join(dir, stem+".mrk"),
	)
	if err != nil {
		return fmt.Errorf("engine: default conversion for %s: %w", col.Name, err)
	}

	stream := NewMemoryBlockStream(toBlocks(blocks))
	defer stream.Close()
	rows, err := Drain(stream)
	if err != nil {
		return fmt.Errorf("engine: default conversion for %s: %w", col.Name, err)
	}

	switch {
	case strings.HasSuffix(base, ".mrk"):
		return part.WriteMark(w, part.Mark{})
	case strings.HasSuffix(base, ".bin"):
		raw, err := part.EncodeBlock(rows)
		if err != nil {
			return err
		}
		_, err = w.Write(part.CompressBlock(raw))
		return err
	default:
		return fmt.Errorf("engine: default conversion: unexpected rewrite target %s", base)
	}
}

func toBlocks(rowSets [][]field.Field) []Block {
	out := make([]Block, len(rowSets))
	for i, rows := range rowSets {
		out[i] = Block{Rows: rows}
	}
	return out
}
