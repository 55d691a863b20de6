package catalog

import "github.com/paradex-labs/bm25index/internal/avlarena"

// SegmentIndex is an in-memory AVL index over one directory snapshot's
// segment entries — the AVL arena applied as the random-access
// counterpart to the append-only segment list:
// callers that need to resolve many segment ids against one snapshot —
// vacuum's per-entry bitset rewrite, a join's ordinal-to-entry lookup —
// build it once instead of re-scanning SegmentMetas() per id.
type SegmentIndex struct {
	tree *avlarena.Tree[string, SegmentEntry, struct{}]
}

// BuildSegmentIndex arranges entries into an AVL index keyed by each
// segment id's string form.
func BuildSegmentIndex(entries []SegmentEntry) *SegmentIndex {
	arena := make([]avlarena.Slot[string, SegmentEntry, struct{}], len(entries))
	tree := avlarena.New(arena)
	for _, e := range entries {
		_, _, _, _ = tree.Insert(e.Meta.SegmentID.String(), e)
	}
	return &SegmentIndex{tree: tree}
}

// Get resolves id to its entry, if present in the snapshot the index was
// built from.
func (s *SegmentIndex) Get(id SegmentID) (SegmentEntry, bool) {
	v, _, ok := s.tree.Get(id.String())
	return v, ok
}

// Len reports how many entries the index holds.
func (s *SegmentIndex) Len() int { return s.tree.Len() }
