package segment

import (
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
)

// Hit is one (score, doc_address) result, carrying enough of
// the document's fast fields for the scan executor to finish projection
// without a second round trip.
type Hit struct {
	SegmentID catalog.SegmentID
	DocID     string
	Score     float64
	Fields    map[string]any
}

// OrderByFeature is one sort key: either the BM25 score or a named fast
// field; Var is reserved for a computed expression feature.
type OrderByFeature struct {
	Kind  FeatureKind
	Field string
}

type FeatureKind int

const (
	FeatureScore FeatureKind = iota
	FeatureField
	FeatureVar
)

// SortDirection carries ascending/descending plus a nulls ordering.
type SortDirection struct {
	Descending bool
	NullsFirst bool
}

// MaxSpecializedFeatures caps the top-N sort key width: the first sort
// feature is specialized and up to two more may be type-erased; wider
// requests fail with a clear diagnostic.
const MaxSpecializedFeatures = 3

// SegmentHandle is one opened, read-only segment: its bleve index plus
// the alive predicate the MVCC layer computed for the current snapshot.
type SegmentHandle struct {
	ID    catalog.SegmentID
	Index bleve.Index
	// Alive reports whether docID (the document key bleve returns as a
	// hit's ID) should
	// be considered present for this reader's lifetime (the composed
	// delete-bitset + ctid-visibility mask). nil means every
	// document is alive (e.g. merge/vacuum paths).
	Alive func(docID string) bool
}

// SearchReader wraps the search engine's per-segment readers,
// presenting the ordering-aware top-N, unordered scan, cardinality
// estimate, checksum validation and snippet-generation surface the
// scan executor and admin functions need.
type SearchReader struct {
	segments map[catalog.SegmentID]*SegmentHandle
	order    []catalog.SegmentID
}

// NewSearchReader builds a reader over the given opened segments, in the
// order supplied, used for deterministic tie-break within one
// execution.
func NewSearchReader(handles []*SegmentHandle) *SearchReader {
	r := &SearchReader{segments: make(map[catalog.SegmentID]*SegmentHandle, len(handles))}
	for _, h := range handles {
		r.segments[h.ID] = h
		r.order = append(r.order, h.ID)
	}
	return r
}

func (r *SearchReader) resolve(ids []catalog.SegmentID) []*SegmentHandle {
	if ids == nil {
		ids = r.order
	}
	out := make([]*SegmentHandle, 0, len(ids))
	for _, id := range ids {
		if h, ok := r.segments[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func aliveOK(h *SegmentHandle, docID string) bool {
	return h.Alive == nil || h.Alive(docID)
}

// Search runs q across every segment with no ordering guarantee.
// Deleted/invisible documents are filtered before they reach the
// caller.
func (r *SearchReader) Search(ids []catalog.SegmentID, q Query) ([]Hit, error) {
	var out []Hit
	for _, h := range r.resolve(ids) {
		req := bleve.NewSearchRequestOptions(q, unboundedSize(h), 0, false)
		req.Fields = []string{"*"}
		result, err := h.Index.Search(req)
		if err != nil {
			return nil, errs.Query(errs.CodeQueryUnparseable, "segment search failed", err)
		}
		for _, hit := range result.Hits {
			if !aliveOK(h, hit.ID) {
				continue
			}
			out = append(out, Hit{SegmentID: h.ID, DocID: hit.ID, Score: hit.Score, Fields: hit.Fields})
		}
	}
	return out, nil
}

// SearchTopNUnorderedInSegments is the cheapest top-N: the first n
// alive matches encountered, segment order stable but otherwise
// unspecified across workers.
func (r *SearchReader) SearchTopNUnorderedInSegments(ids []catalog.SegmentID, q Query, n, offset int) ([]Hit, error) {
	var out []Hit
	skipped := 0
	for _, h := range r.resolve(ids) {
		if len(out) >= n {
			break
		}
		req := bleve.NewSearchRequestOptions(q, unboundedSize(h), 0, false)
		req.Fields = []string{"*"}
		result, err := h.Index.Search(req)
		if err != nil {
			return nil, errs.Query(errs.CodeQueryUnparseable, "segment search failed", err)
		}
		for _, hit := range result.Hits {
			if !aliveOK(h, hit.ID) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, Hit{SegmentID: h.ID, DocID: hit.ID, Score: hit.Score, Fields: hit.Fields})
			if len(out) >= n {
				break
			}
		}
	}
	return out, nil
}

// SearchTopNInSegments is the ordering-aware top-N: a
// block-WAND-equivalent scoring-only path when the sole feature is a
// descending score, and a tuple-key comparator otherwise. bleve's
// SearchRequest.SortBy already expresses both as native sort strings,
// so this method's job is translating OrderByFeature/SortDirection into
// that string form and rejecting over-wide feature lists.
func (r *SearchReader) SearchTopNInSegments(ids []catalog.SegmentID, q Query, orderBy []OrderByFeature, dirs []SortDirection, n, offset int) ([]Hit, error) {
	if len(orderBy) > MaxSpecializedFeatures {
		return nil, errs.Query(errs.CodeQueryTooManyFeatures,
			"top-N accepts at most 3 order-by features (1 specialized + 2 type-erased)", nil)
	}

	var out []Hit
	for _, h := range r.resolve(ids) {
		req := bleve.NewSearchRequestOptions(q, unboundedSize(h), 0, false)
		req.Fields = []string{"*"}
		req.SortBy(sortStrings(orderBy, dirs))
		result, err := h.Index.Search(req)
		if err != nil {
			return nil, errs.Query(errs.CodeQueryUnparseable, "segment search failed", err)
		}
		for _, hit := range result.Hits {
			if !aliveOK(h, hit.ID) {
				continue
			}
			out = append(out, Hit{SegmentID: h.ID, DocID: hit.ID, Score: hit.Score, Fields: hit.Fields})
		}
	}

	sortHits(out, orderBy, dirs)
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

func sortStrings(orderBy []OrderByFeature, dirs []SortDirection) []string {
	out := make([]string, 0, len(orderBy))
	for i, f := range orderBy {
		desc := len(dirs) > i && dirs[i].Descending
		var name string
		switch f.Kind {
		case FeatureScore:
			name = "_score"
		default:
			name = f.Field
		}
		if desc {
			out = append(out, "-"+name)
		} else {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = []string{"-_score"}
	}
	return out
}

// sortHits re-applies the comparator across the merged, multi-segment
// result set: bleve's per-segment SortBy already orders each segment's
// hits, but merging several already-sorted streams still needs a final
// stable pass so cross-segment ties break the same way regardless of
// which segment a worker happened to scan first — top-N merging must
// use the same comparator the collector uses so results are stable
// regardless of worker count.
func sortHits(hits []Hit, orderBy []OrderByFeature, dirs []SortDirection) {
	less := func(i, j int) bool {
		for k, f := range orderBy {
			desc := len(dirs) > k && dirs[k].Descending
			var a, b any
			switch f.Kind {
			case FeatureScore:
				a, b = hits[i].Score, hits[j].Score
			default:
				a, b = hits[i].Fields[f.Field], hits[j].Fields[f.Field]
			}
			cmp := CompareFieldValues(a, b)
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		// Final tiebreak: document address (segment id, then doc id),
		// a stable but otherwise arbitrary order.
		if hits[i].SegmentID != hits[j].SegmentID {
			return hits[i].SegmentID.String() < hits[j].SegmentID.String()
		}
		return hits[i].DocID < hits[j].DocID
	}
	sort.SliceStable(hits, less)
}

// CompareFieldValues orders two fast-field values of the same declared
// kind. It covers every orderable value a stored field can come back
// as: float64 (numerics, including decoded integers), string (text and
// RFC3339 dates), bool (false before true) and time.Time. A nil sorts
// before any non-nil value so nulls-first is the comparator's natural
// order; values of an unorderable kind are treated as equal.
func CompareFieldValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// EstimateDocs is the planner's cardinality estimate: the largest
// segment's matched-count, scaled by that segment's share of total rows.
// totalRows is the host's visible row count across every segment.
func (r *SearchReader) EstimateDocs(q Query, totalRows int) (int, error) {
	var largest *SegmentHandle
	var largestCount uint64
	for _, id := range r.order {
		h := r.segments[id]
		c, err := h.Index.DocCount()
		if err != nil {
			continue
		}
		if largest == nil || c > largestCount {
			largest, largestCount = h, c
		}
	}
	if largest == nil || largestCount == 0 {
		return 0, nil
	}

	result, err := largest.Index.Search(bleve.NewSearchRequestOptions(q, 0, 0, false))
	if err != nil {
		return 0, errs.Query(errs.CodeQueryUnparseable, "estimate search failed", err)
	}
	hint := result.Total
	if hint == 0 {
		hint = largestCount
	}
	proportion := float64(largestCount) / float64(totalRows)
	if proportion <= 0 {
		proportion = 1
	}
	return int(float64(hint) / proportion), nil
}

// ValidateChecksum asks the engine to verify every file's embedded
// checksum. bleve/scorch's zap segment files carry their own
// CRC footers; bleve.Index.Open already fails to load a segment whose
// footer doesn't match, so validation here is "can every segment still
// be opened and searched," matching the observable contract.
func (r *SearchReader) ValidateChecksum() error {
	for _, id := range r.order {
		h := r.segments[id]
		if _, err := h.Index.DocCount(); err != nil {
			return errs.Storage(errs.CodeStorageChecksumFailed, "segment checksum validation failed", err).
				WithDetail("segment", id.String())
		}
	}
	return nil
}

// Snippeter generates highlighted snippets for a field match.
type Snippeter struct {
	Field       string
	OpenMarker  string
	CloseMarker string
}

// NewSnippeter builds a snippet generator for field with configurable
// open/close markers.
func NewSnippeter(field, open, close string) *Snippeter {
	return &Snippeter{Field: field, OpenMarker: open, CloseMarker: close}
}

// Snippet joins hit's pre-extracted matching fragments (e.g. from
// bleve's search.DocumentMatch.Fragments for s.Field) and rewrites
// bleve's default <mark>...</mark> wrapping to the configured markers.
func (s *Snippeter) Snippet(h Hit, fragments []string) string {
	joined := strings.Join(fragments, " ... ")
	joined = strings.ReplaceAll(joined, "<mark>", s.OpenMarker)
	joined = strings.ReplaceAll(joined, "</mark>", s.CloseMarker)
	return joined
}

// unboundedSize is a practical cap on a single segment's result window:
// bleve requires a concrete size, so this uses the segment's live
// document count rather than an arbitrary constant.
func unboundedSize(h *SegmentHandle) int {
	c, err := h.Index.DocCount()
	if err != nil || c == 0 {
		return 1
	}
	return int(c)
}
