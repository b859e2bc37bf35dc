package merge

import "mergetree/internal/part"

// SelectionPolicy picks a contiguous run of same-partition active parts to
// merge next, from a candidate list already ordered by (partition,
// min_block) (spec.md §4.5.3). Returning fewer than two parts means "no
// merge is warranted right now".
type SelectionPolicy func(parts []*part.DataPart, budget int64) []*part.DataPart

// SelectByTotalSize is the default policy: the longest contiguous run,
// starting at any position, whose combined on-disk size fits budget (the
// earliest such run on a tie).
func SelectByTotalSize(parts []*part.DataPart, budget int64) []*part.DataPart {
	best := []*part.DataPart{}
	for start := 0; start < len(parts); start++ {
		var total int64
		end := start
		for end < len(parts) {
			total += parts[end].SizeBytes()
			if total > budget {
				break
			}
			end++
		}
		if run := end - start; run > len(best) {
			best = parts[start:end]
		}
	}
	if len(best) < 2 {
		return nil
	}
	return best
}
