package am

import (
	"github.com/blevesearch/bleve/v2"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/mvcc"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// OpenReader opens a SearchReader over the segment set the given mvcc
// style and snapshot select, composing each segment's persisted delete
// bitset (and, when heapVis is non-nil, the ctid heap-visibility mask)
// into the handle's alive predicate: open snapshot, pick segment set,
// open segment readers.
//
// The returned release func drops the scan's shared cleanup pin and
// closes every opened segment; callers must invoke it even on error
// paths once the reader is no longer in use.
func (idx *Index) OpenReader(style mvcc.Style, snap mvcc.Snapshot, heapVis mvcc.HeapVisibility) (*segment.SearchReader, []catalog.SegmentID, func() error, error) {
	unpin, err := idx.dir.CleanupLockShared()
	if err != nil {
		return nil, nil, nil, err
	}

	entries, err := idx.dir.SegmentMetas()
	if err != nil {
		_ = unpin()
		return nil, nil, nil, err
	}

	var excluded map[catalog.SegmentID]bool
	if style == mvcc.StyleMergeCandidate {
		merges, err := idx.dir.MergeEntries()
		if err != nil {
			_ = unpin()
			return nil, nil, nil, err
		}
		excluded = make(map[catalog.SegmentID]bool)
		for _, me := range merges {
			for i := 0; i < int(me.NumSegments); i++ {
				excluded[me.SegmentIDs[i]] = true
			}
		}
	}

	dir := mvcc.Build(entries, style, snap, excluded)
	index := catalog.BuildSegmentIndex(entries)

	var handles []*segment.SegmentHandle
	closeAll := func() error {
		var first error
		for _, h := range handles {
			if err := h.Index.Close(); err != nil && first == nil {
				first = err
			}
		}
		if err := unpin(); err != nil && first == nil {
			first = err
		}
		return first
	}

	for _, id := range dir.SegmentIDs {
		r, err := segment.Open(segment.NewSegmentDir(idx.BaseDir, id))
		if err != nil {
			_ = closeAll()
			return nil, nil, nil, err
		}
		handles = append(handles, &segment.SegmentHandle{ID: id, Index: r})

		e, ok := index.Get(id)
		if !ok || e.Meta.NumDeleted == 0 && heapVis == nil {
			continue
		}
		alive, err := idx.aliveMask(id, r, int(e.Meta.NumDocs), heapVis, snap)
		if err != nil {
			_ = closeAll()
			return nil, nil, nil, err
		}
		handles[len(handles)-1].Alive = alive
	}

	return segment.NewSearchReader(handles), dir.SegmentIDs, closeAll, nil
}

// aliveMask builds the composed per-document alive predicate for one
// segment: the persisted delete bitset plus an optional
// ctid heap-visibility check, keyed back from doc key to ordinal via
// the same enumeration order the bitset writer used.
func (idx *Index) aliveMask(id catalog.SegmentID, r bleve.Index, numDocs int, heapVis mvcc.HeapVisibility, snap mvcc.Snapshot) (func(docID string) bool, error) {
	segDir := segment.NewSegmentDir(idx.BaseDir, id)
	bitset, err := segment.ReadDeleteBitset(segDir, numDocs)
	if err != nil {
		return nil, err
	}

	keys, ctids, err := segmentDocOrdinals(r)
	if err != nil {
		return nil, err
	}
	ordinals := make(map[string]int, len(keys))
	for ord, key := range keys {
		ordinals[key] = ord
	}

	composed := mvcc.NewAliveBitset(numDocs,
		bitset.IsDeleted,
		func(docID int) uint64 {
			if docID >= len(ctids) {
				return 0
			}
			return ctids[docID]
		},
		heapVis, snap)

	return func(docID string) bool {
		ord, ok := ordinals[docID]
		if !ok {
			return false
		}
		return composed.Alive(ord)
	}, nil
}

// segmentDocOrdinals enumerates a segment's doc keys in ordinal order
// together with each document's ctid fast-field value (zero when the
// writer never supplied one). r is the segment handle the caller already
// holds open; a second open of the same segment directory would block on
// the store's file lock.
func segmentDocOrdinals(r bleve.Index) ([]string, []uint64, error) {
	count, err := r.DocCount()
	if err != nil || count == 0 {
		return nil, nil, err
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = []string{segment.FieldCtid}
	result, err := r.Search(req)
	if err != nil {
		return nil, nil, errs.Storage(errs.CodeStorageIO, "segment enumeration failed", err)
	}

	keys := make([]string, 0, len(result.Hits))
	ctids := make([]uint64, 0, len(result.Hits))
	for _, hit := range result.Hits {
		keys = append(keys, hit.ID)
		var ctid uint64
		if v, ok := hit.Fields[segment.FieldCtid].(float64); ok {
			ctid = uint64(v)
		}
		ctids = append(ctids, ctid)
	}
	return keys, ctids, nil
}
