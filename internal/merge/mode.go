package merge

import (
	"errors"
	"fmt"
)

// Mode selects the row-reconciliation strategy applied while streaming a
// merge's inputs into its output part.
type Mode int32

const (
	ModeOrdinary Mode = iota
	ModeCollapsing
	ModeSumming
	ModeReplacing
	// ModeGraphite is recognized but not implemented: Graphite rollup
	// aggregation needs a retention-pattern configuration this module has
	// no collaborator for yet. Selecting it fails closed rather than
	// silently falling back to an ordinary merge.
	ModeGraphite
)

// ErrUnsupportedMergeMode is returned by the merge stream when Mode is
// ModeGraphite.
var ErrUnsupportedMergeMode = errors.New("merge: graphite merge mode is not implemented")

func (m Mode) String() string {
	switch m {
	case ModeOrdinary:
		return "ordinary"
	case ModeCollapsing:
		return "collapsing"
	case ModeSumming:
		return "summing"
	case ModeReplacing:
		return "replacing"
	case ModeGraphite:
		return "graphite"
	default:
		return "unknown"
	}
}

// ParseMode maps a table's configured merge_mode string (Settings.MergeMode)
// to a Mode. An empty string defaults to ModeOrdinary.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "ordinary":
		return ModeOrdinary, nil
	case "collapsing":
		return ModeCollapsing, nil
	case "summing":
		return ModeSumming, nil
	case "replacing":
		return ModeReplacing, nil
	case "graphite":
		return ModeGraphite, nil
	default:
		return 0, fmt.Errorf("merge: unknown merge mode %q", s)
	}
}
