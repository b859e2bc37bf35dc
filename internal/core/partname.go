package core

import (
	"fmt"
	"time"
)

const partNameDateLayout = "20060102"

// PartName is the canonical identity of one on-disk part:
// YYYYMMDD_YYYYMMDD_min_max_level.
type PartName struct {
	LeftDate  time.Time
	RightDate time.Time
	MinBlock  int64
	MaxBlock  int64
	Level     int32
}

// ErrMalformedPartName is returned by ParsePartName when a directory name
// does not match the strict part-name grammar. Callers treat it as
// "ignore this directory", per spec §4.1.
var ErrMalformedPartName = fmt.Errorf("core: malformed part name")

// String formats a PartName back into its canonical directory-name form.
func (p PartName) String() string {
	return fmt.Sprintf("%s_%s_%d_%d_%d",
		p.LeftDate.Format(partNameDateLayout),
		p.RightDate.Format(partNameDateLayout),
		p.MinBlock, p.MaxBlock, p.Level)
}

// Partition returns the partition (monthly bucket) this part belongs to.
// Per spec §3, left_date and right_date never cross a month boundary, so
// either endpoint identifies the partition.
func (p PartName) Partition() PartitionID {
	return PartitionOf(p.LeftDate)
}

// ParsePartName parses a directory name of the strict form
// YYYYMMDD_YYYYMMDD_min_max_level. Any deviation is reported as
// ErrMalformedPartName (wrapped with the original parse failure).
func ParsePartName(name string) (PartName, error) {
	var leftRaw, rightRaw string
	var min, max int64
	var level int32

	n, err := fmt.Sscanf(name, "%8s_%8s_%d_%d_%d", &leftRaw, &rightRaw, &min, &max, &level)
	if err != nil || n != 5 {
		return PartName{}, fmt.Errorf("%w: %q: %v", ErrMalformedPartName, name, err)
	}

	left, err := time.Parse(partNameDateLayout, leftRaw)
	if err != nil {
		return PartName{}, fmt.Errorf("%w: %q: bad left date: %v", ErrMalformedPartName, name, err)
	}
	right, err := time.Parse(partNameDateLayout, rightRaw)
	if err != nil {
		return PartName{}, fmt.Errorf("%w: %q: bad right date: %v", ErrMalformedPartName, name, err)
	}
	if min > max {
		return PartName{}, fmt.Errorf("%w: %q: min_block > max_block", ErrMalformedPartName, name)
	}
	if level < 0 {
		return PartName{}, fmt.Errorf("%w: %q: negative level", ErrMalformedPartName, name)
	}

	p := PartName{LeftDate: left, RightDate: right, MinBlock: min, MaxBlock: max, Level: level}
	if p.String() != name {
		return PartName{}, fmt.Errorf("%w: %q: not in canonical form", ErrMalformedPartName, name)
	}
	if p.Partition() != PartitionOf(right) {
		return PartName{}, fmt.Errorf("%w: %q: left/right dates cross a partition boundary", ErrMalformedPartName, name)
	}
	return p, nil
}

// Contains reports whether part a contains part b: same partition, and a's
// block range encloses b's block range (spec §3, "Containment").
func Contains(a, b PartName) bool {
	return a.Partition() == b.Partition() && a.MinBlock <= b.MinBlock && a.MaxBlock >= b.MaxBlock
}

// Equal defines part-name equality by block range, partition, and level —
// NOT by date range, which may legitimately differ between two parts that
// otherwise describe the same committed range (spec §4.1).
func Equal(a, b PartName) bool {
	return a.MinBlock == b.MinBlock && a.MaxBlock == b.MaxBlock &&
		a.Partition() == b.Partition() && a.Level == b.Level
}

// Less implements the registry's total order: (partition, min_block,
// max_block, level). This order makes containment detection a bounded
// scan of the neighbors of an insertion point (spec §4.1).
func Less(a, b PartName) bool {
	if a.Partition() != b.Partition() {
		return a.Partition() < b.Partition()
	}
	if a.MinBlock != b.MinBlock {
		return a.MinBlock < b.MinBlock
	}
	if a.MaxBlock != b.MaxBlock {
		return a.MaxBlock < b.MaxBlock
	}
	return a.Level < b.Level
}

// Adjacent reports whether a and b are in the same partition and their
// block ranges touch or overlap without one containing the other — the
// shape a merge-selection policy looks for beyond pure containment.
func Adjacent(a, b PartName) bool {
	if a.Partition() != b.Partition() {
		return false
	}
	if Contains(a, b) || Contains(b, a) {
		return false
	}
	return a.MinBlock <= b.MaxBlock+1 && b.MinBlock <= a.MaxBlock+1
}
