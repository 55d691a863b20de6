package segment

import (
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
)

func openTestReader(t *testing.T) (*SearchReader, []catalog.SegmentID) {
	t.Helper()
	schema := testSchema(t)

	segA := []Document{
		{Key: "1", Fields: map[string]any{"description": "plastic keyboard", "rating": 4.0}},
		{Key: "2", Fields: map[string]any{"description": "ergonomic keyboard", "rating": 5.0}},
	}
	segB := []Document{
		{Key: "3", Fields: map[string]any{"description": "mechanical keyboard", "rating": 2.0}},
		{Key: "4", Fields: map[string]any{"description": "plastic mouse", "rating": 1.0}},
	}

	var handles []*SegmentHandle
	var ids []catalog.SegmentID
	for _, docs := range [][]Document{segA, segB} {
		id := catalog.NewSegmentID()
		dir := NewSegmentDir(t.TempDir(), id)
		_, err := Build(dir, schema, docs)
		require.NoError(t, err)
		idx, err := Open(dir)
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		handles = append(handles, &SegmentHandle{ID: id, Index: idx})
		ids = append(ids, id)
	}
	return NewSearchReader(handles), ids
}

func matchQuery(text string) Query {
	q := bleve.NewMatchQuery(text)
	q.SetField("description")
	return q
}

func TestSearchSpansSegments(t *testing.T) {
	r, _ := openTestReader(t)

	hits, err := r.Search(nil, matchQuery("keyboard"))
	require.NoError(t, err)
	require.Len(t, hits, 3)
}

func TestSearchRespectsAliveMask(t *testing.T) {
	r, ids := openTestReader(t)
	r.segments[ids[0]].Alive = func(docID string) bool { return docID != "2" }

	hits, err := r.Search(nil, matchQuery("keyboard"))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "2", h.DocID)
	}
}

func TestSearchTopNByFieldAscendingAndDescending(t *testing.T) {
	r, _ := openTestReader(t)

	orderBy := []OrderByFeature{{Kind: FeatureField, Field: "rating"}}

	asc, err := r.SearchTopNInSegments(nil, matchQuery("keyboard"), orderBy,
		[]SortDirection{{Descending: false}}, 3, 0)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, "3", asc[0].DocID)
	assert.Equal(t, "1", asc[1].DocID)
	assert.Equal(t, "2", asc[2].DocID)

	desc, err := r.SearchTopNInSegments(nil, matchQuery("keyboard"), orderBy,
		[]SortDirection{{Descending: true}}, 3, 0)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, "2", desc[0].DocID)
	assert.Equal(t, "3", desc[2].DocID)
}

func TestSearchTopNLimitAndOffset(t *testing.T) {
	r, _ := openTestReader(t)
	orderBy := []OrderByFeature{{Kind: FeatureField, Field: "rating"}}

	page, err := r.SearchTopNInSegments(nil, matchQuery("keyboard"), orderBy,
		[]SortDirection{{Descending: true}}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1", page[0].DocID)

	past, err := r.SearchTopNInSegments(nil, matchQuery("keyboard"), orderBy, nil, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestSearchTopNRejectsTooManyFeatures(t *testing.T) {
	r, _ := openTestReader(t)

	wide := []OrderByFeature{
		{Kind: FeatureScore},
		{Kind: FeatureField, Field: "rating"},
		{Kind: FeatureField, Field: "description"},
		{Kind: FeatureField, Field: "rating"},
	}
	_, err := r.SearchTopNInSegments(nil, matchQuery("keyboard"), wide, nil, 10, 0)
	require.Error(t, err)
	assert.Equal(t, errs.CodeQueryTooManyFeatures, errs.GetCode(err))
}

func TestSearchTopNUnordered(t *testing.T) {
	r, _ := openTestReader(t)

	hits, err := r.SearchTopNUnorderedInSegments(nil, matchQuery("keyboard"), 2, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	all, err := r.SearchTopNUnorderedInSegments(nil, matchQuery("keyboard"), 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "N larger than the match set returns every match")
}

func TestEstimateDocs(t *testing.T) {
	r, _ := openTestReader(t)

	est, err := r.EstimateDocs(matchQuery("keyboard"), 4)
	require.NoError(t, err)
	assert.Greater(t, est, 0)
}

func TestValidateChecksum(t *testing.T) {
	r, _ := openTestReader(t)
	require.NoError(t, r.ValidateChecksum())
}

func TestSnippeterRewritesMarkers(t *testing.T) {
	s := NewSnippeter("description", "<b>", "</b>")
	out := s.Snippet(Hit{}, []string{"a <mark>keyboard</mark> here", "another <mark>keyboard</mark>"})
	assert.Equal(t, "a <b>keyboard</b> here ... another <b>keyboard</b>", out)
}

func TestCompareFieldValues(t *testing.T) {
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"floats", 1.0, 2.0, -1},
		{"equal floats", 2.0, 2.0, 0},
		{"strings", "a", "b", -1},
		{"false before true", false, true, -1},
		{"true after false", true, false, 1},
		{"equal bools", true, true, 0},
		{"times", earlier, later, -1},
		{"equal times", earlier, earlier, 0},
		{"nil sorts first", nil, 1.0, -1},
		{"non-nil after nil", "x", nil, 1},
		{"both nil", nil, nil, 0},
		{"unorderable kinds tie", []int{1}, []int{2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareFieldValues(tt.a, tt.b))
		})
	}
}

func TestSortHitsByBoolField(t *testing.T) {
	id := catalog.NewSegmentID()
	hits := []Hit{
		{SegmentID: id, DocID: "1", Fields: map[string]any{"published": true}},
		{SegmentID: id, DocID: "2", Fields: map[string]any{"published": false}},
		{SegmentID: id, DocID: "3", Fields: map[string]any{"published": true}},
	}
	sortHits(hits, []OrderByFeature{{Kind: FeatureField, Field: "published"}},
		[]SortDirection{{Descending: true}})

	assert.Equal(t, "1", hits[0].DocID)
	assert.Equal(t, "3", hits[1].DocID)
	assert.Equal(t, "2", hits[2].DocID, "false rows sort after true under descending")
}

func TestSortHitsTiebreakIsStable(t *testing.T) {
	idA := catalog.NewSegmentID()
	idB := catalog.NewSegmentID()
	hits := []Hit{
		{SegmentID: idB, DocID: "x", Score: 1.0},
		{SegmentID: idA, DocID: "y", Score: 1.0},
		{SegmentID: idA, DocID: "x", Score: 1.0},
	}
	sortHits(hits, []OrderByFeature{{Kind: FeatureScore}}, []SortDirection{{Descending: true}})

	// Equal scores fall through to the (segment id, doc id) address order.
	reordered := []Hit{hits[2], hits[0], hits[1]}
	sortHits(reordered, []OrderByFeature{{Kind: FeatureScore}}, []SortDirection{{Descending: true}})
	assert.Equal(t, hits, reordered)
}
