// Package alter implements C6, the per-part alter transaction: computing
// which files a column-list change touches, streaming conversions, and
// committing the result with a crash-safe rename sequence (spec.md §4.6).
package alter

import (
	"fmt"
	"strings"

	"mergetree/internal/part"
)

// RenameMap is {old_filename -> new_filename_or_empty}; an empty target
// means the old file is deleted outright.
type RenameMap map[string]string

// Plan is the computed effect of changing a part's column list, before any
// I/O happens.
type Plan struct {
	// Renames holds file-level rename/delete/rewrite entries.
	Renames RenameMap
	// MetadataOnlyEnumChanges lists columns whose enum value set changed
	// but whose underlying integer width did not: no file rewrite needed,
	// only the column's type string in columns.txt is updated
	// (force_update_metadata, spec.md §4.6 step 2).
	MetadataOnlyEnumChanges []string
}

// BuildPlan computes the rename map for changing a part's schema from
// oldCols to newCols, per spec.md §4.6 step 1.
func BuildPlan(oldCols, newCols part.ColumnList) Plan {
	p := Plan{Renames: RenameMap{}}

	newByName := make(map[string]part.Column, len(newCols))
	for _, c := range newCols {
		newByName[c.Name] = c
	}

	for _, old := range oldCols {
		nc, stillPresent := newByName[old.Name]
		if !stillPresent {
			for _, f := range part.ColumnFiles(old) {
				p.Renames[f] = ""
			}
			continue
		}
		if nc.Type == old.Type {
			continue
		}
		if sameWidth, ok := enumWidthUnchanged(old.Type, nc.Type); ok && sameWidth {
			p.MetadataOnlyEnumChanges = append(p.MetadataOnlyEnumChanges, old.Name)
			continue
		}
		// Type change: the .bin/.mrk (and, for arrays, .size0.*) files are
		// rewritten in place — same final filename, fresh content staged
		// at <filename>.tmp by the conversion stream.
		for _, f := range part.ColumnFiles(nc) {
			p.Renames[f] = f
		}
		// If the column stopped being an array, its old size files have no
		// counterpart in ColumnFiles(nc) and must be dropped explicitly.
		if strings.HasPrefix(old.Type, "Array(") && !strings.HasPrefix(nc.Type, "Array(") {
			esc := part.EscapeFileName(old.Name)
			p.Renames[esc+".size0.bin"] = ""
			p.Renames[esc+".size0.mrk"] = ""
		}
	}

	return p
}

// enumWidthUnchanged reports, for two Enum8(...)/Enum16(...) type strings
// of the same column, whether the underlying integer width is identical —
// in which case only the value-name mapping changed and no file rewrite is
// needed. ok is false if either type is not an Enum type.
func enumWidthUnchanged(oldType, newType string) (sameWidth bool, ok bool) {
	oldWidth, oldOK := enumWidth(oldType)
	newWidth, newOK := enumWidth(newType)
	if !oldOK || !newOK {
		return false, false
	}
	return oldWidth == newWidth, true
}

func enumWidth(t string) (string, bool) {
	switch {
	case strings.HasPrefix(t, "Enum8("):
		return "8", true
	case strings.HasPrefix(t, "Enum16("):
		return "16", true
	default:
		return "", false
	}
}

// CheckSanity enforces max_files_to_modify_in_alter_columns: when sanity
// checks are enabled and the plan touches more files than the cap allows,
// the alter must abort before any I/O (spec.md §4.6 step 3).
func (p Plan) CheckSanity(maxFiles int, sanityEnabled bool) error {
	if !sanityEnabled || maxFiles <= 0 {
		return nil
	}
	if n := len(p.Renames); n > maxFiles {
		return fmt.Errorf("alter: plan touches %d files, exceeds max_files_to_modify_in_alter_columns=%d", n, maxFiles)
	}
	return nil
}
