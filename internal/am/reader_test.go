package am

import (
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/mvcc"
	"github.com/paradex-labs/bm25index/internal/segment"
)

func TestOpenReaderSeesCommittedSegments(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "plastic keyboard"),
		doc("2", "ergonomic keyboard"),
	})
	require.NoError(t, err)
	defer idx.Close()

	reader, ids, release, err := idx.OpenReader(mvcc.StyleSnapshot, mvcc.AllCommitted{}, nil)
	require.NoError(t, err)
	defer release()
	require.Len(t, ids, 1)

	q := bleve.NewMatchQuery("keyboard")
	q.SetField("description")
	hits, err := reader.Search(nil, q)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestOpenReaderMasksVacuumedDeletions(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "plastic keyboard"),
		doc("2", "ergonomic keyboard"),
	})
	require.NoError(t, err)
	defer idx.Close()

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.NoError(t, idx.BulkDelete(9, []catalog.SegmentID{entries[0].Meta.SegmentID}))
	require.NoError(t, idx.VacuumCleanup(0, func(id catalog.SegmentID, docKey string) bool {
		return docKey == "2"
	}))

	reader, _, release, err := idx.OpenReader(mvcc.StyleSnapshot, mvcc.AllCommitted{}, nil)
	require.NoError(t, err)
	defer release()

	q := bleve.NewMatchQuery("keyboard")
	q.SetField("description")
	hits, err := reader.Search(nil, q)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].DocID)
}

func TestOpenReaderLargestSegmentStyle(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(1, doc("a", "keyboard")))
	require.NoError(t, idx.Flush(1))
	require.NoError(t, idx.Insert(2, doc("b", "keyboard")))
	require.NoError(t, idx.Insert(2, doc("c", "keyboard")))
	require.NoError(t, idx.Flush(2))

	_, ids, release, err := idx.OpenReader(mvcc.StyleLargestSegment, mvcc.AllCommitted{}, nil)
	require.NoError(t, err)
	defer release()

	require.Len(t, ids, 1, "largest-segment style exposes exactly one segment")
}
