package engine

import lru "github.com/hashicorp/golang-lru/v2"

// MarkCacheKey identifies one cached mark-file entry: a part name, the
// column's mark file, and the mark index within it.
type MarkCacheKey struct {
	Part      string
	MarkFile  string
	MarkIndex int
}

// BlockCacheKey identifies one cached decompressed column block: a part
// name, the column's data file, and the compressed byte offset the block
// starts at (the same coordinate a Mark records).
type BlockCacheKey struct {
	Part             string
	DataFile         string
	CompressedOffset uint64
}

// Caches bundles the two caches a running instance keeps warm: marks (so
// random-access reads don't re-parse the mark file) and decompressed
// column blocks (so repeated range scans don't re-run zstd). Both are
// bounded LRUs, grounded on hashicorp/golang-lru/v2 rather than a
// hand-rolled map+eviction-list, the same dependency several of the
// retrieved repos reach for wherever they need a bounded in-memory cache.
type Caches struct {
	marks  *lru.Cache[MarkCacheKey, []byte]
	blocks *lru.Cache[BlockCacheKey, []byte]
}

// NewCaches builds a Caches with the given capacities, in entries.
func NewCaches(markEntries, blockEntries int) (*Caches, error) {
	marks, err := lru.New[MarkCacheKey, []byte](markEntries)
	if err != nil {
		return nil, err
	}
	blocks, err := lru.New[BlockCacheKey, []byte](blockEntries)
	if err != nil {
		return nil, err
	}
	return &Caches{marks: marks, blocks: blocks}, nil
}

func (c *Caches) Mark(key MarkCacheKey) ([]byte, bool)   { return c.marks.Get(key) }
func (c *Caches) PutMark(key MarkCacheKey, raw []byte)   { c.marks.Add(key, raw) }
func (c *Caches) Block(key BlockCacheKey) ([]byte, bool) { return c.blocks.Get(key) }
func (c *Caches) PutBlock(key BlockCacheKey, raw []byte) { c.blocks.Add(key, raw) }

// InvalidatePart drops every cache entry belonging to one part, e.g. after
// it is renamed (ALTER), dropped (GC), or detached. The caches are keyed
// by part name rather than a pointer, so this is the only way to reclaim
// their entries once a part's identity changes.
func (c *Caches) InvalidatePart(partName string) {
	for _, k := range c.marks.Keys() {
		if k.Part == partName {
			c.marks.Remove(k)
		}
	}
	for _, k := range c.blocks.Keys() {
		if k.Part == partName {
			c.blocks.Remove(k)
		}
	}
}
