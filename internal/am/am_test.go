package am

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/config"
	"github.com/paradex-labs/bm25index/internal/segment"
)

func testOptions(t *testing.T) *config.IndexOptions {
	t.Helper()
	opts := config.NewIndexOptions("id")
	opts.TextFields = map[string]config.FieldOptions{
		"description": {Fast: true, Stored: true},
	}
	require.NoError(t, opts.Validate())
	return opts
}

func doc(key, description string) segment.Document {
	return segment.Document{Key: key, Fields: map[string]any{"description": description}}
}

func TestBuildWithInitialDocs(t *testing.T) {
	idx, hdr, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "plastic keyboard"),
		doc("2", "ergonomic keyboard"),
	})
	require.NoError(t, err)
	defer idx.Close()

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Meta.NumDocs)
	assert.Equal(t, uint64(1), entries[0].Meta.Xmin)
	assert.NotZero(t, hdr.CatalogHeader.SegmentsStart)
}

func TestHeaderRoundTripReopensIndex(t *testing.T) {
	baseDir := t.TempDir()
	opts := testOptions(t)

	idx, _, err := Build(baseDir, opts, []segment.Document{doc("1", "keyboard")})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	hdr, err := ReadHeader(baseDir)
	require.NoError(t, err)

	reopened, err := Open(baseDir, opts, hdr)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Directory().SegmentMetas()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInsertFlushesAtThreshold(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), nil)
	require.NoError(t, err)
	defer idx.Close()

	// Small docs stay in the builder until an explicit Flush.
	require.NoError(t, idx.Insert(5, doc("1", "keyboard")))
	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, idx.Flush(5))
	entries, err = idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(5), entries[0].Meta.Xmin)

	// Flushing an xid with no pending builder is a no-op.
	require.NoError(t, idx.Flush(5))
	entries, err = idx.Directory().SegmentMetas()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A document that takes the builder past FlushThresholdBytes is
	// flushed by Insert itself, with no explicit Flush.
	require.NoError(t, idx.Insert(6, doc("2", strings.Repeat("keyboard ", FlushThresholdBytes/8))))
	entries, err = idx.Directory().SegmentMetas()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestConcurrentWritersGetIndependentSegments(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(10, doc("a", "keyboard")))
	require.NoError(t, idx.Insert(20, doc("b", "mouse")))
	require.NoError(t, idx.Flush(10))
	require.NoError(t, idx.Flush(20))

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	xids := map[uint64]bool{entries[0].Meta.Xmin: true, entries[1].Meta.Xmin: true}
	assert.True(t, xids[10])
	assert.True(t, xids[20])
}

func TestAbortStampsFlushedSegments(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(7, doc("a", "keyboard")))
	require.NoError(t, idx.Flush(7))
	require.NoError(t, idx.Insert(7, doc("b", "mouse"))) // still pending

	require.NoError(t, idx.Abort(7))

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 1, "the pending builder is discarded, not flushed")
	assert.Equal(t, uint64(7), entries[0].Meta.XmaxTxn)
}

func TestBulkDeleteQueuesAndVacuumCleanupDrains(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "keyboard"),
		doc("2", "mouse"),
	})
	require.NoError(t, err)
	defer idx.Close()

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	segID := entries[0].Meta.SegmentID

	require.NoError(t, idx.BulkDelete(9, []catalog.SegmentID{segID}))
	queued, err := idx.Directory().VacuumEntries()
	require.NoError(t, err)
	require.Len(t, queued, 1)

	isDeleted := func(id catalog.SegmentID, docKey string) bool { return docKey == "2" }
	require.NoError(t, idx.VacuumCleanup(100, isDeleted))

	queued, err = idx.Directory().VacuumEntries()
	require.NoError(t, err)
	assert.Empty(t, queued, "completed vacuum entries are removed")

	entries, err = idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Meta.NumDeleted)
}

func TestValidatePassesOnHealthyIndex(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{doc("1", "keyboard")})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Validate())
}
