package am

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/segment"
)

type mapHeap map[string]bool

func (m mapHeap) Contains(key string) bool { return m[key] }
func (m mapHeap) Keys() ([]string, error) {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

func TestVerifyCleanIndex(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "keyboard"),
		doc("2", "mouse"),
	})
	require.NoError(t, err)
	defer idx.Close()

	heap := mapHeap{"1": true, "2": true}
	report, err := idx.Verify(VerifyOptions{HeapAllIndexed: true}, heap)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.SegmentsChecked)
	assert.Equal(t, 2, report.DocsChecked)
}

func TestVerifyDetectsMissingHeapRow(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{
		doc("1", "keyboard"),
		doc("2", "mouse"),
	})
	require.NoError(t, err)
	defer idx.Close()

	heap := mapHeap{"1": true}
	report, err := idx.Verify(VerifyOptions{}, heap)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"2"}, report.MissingFromHeap)
}

func TestVerifyHeapAllIndexedDetectsUnindexedRow(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{doc("1", "keyboard")})
	require.NoError(t, err)
	defer idx.Close()

	heap := mapHeap{"1": true, "orphan": true}
	report, err := idx.Verify(VerifyOptions{HeapAllIndexed: true}, heap)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"orphan"}, report.MissingFromIndex)
}

func TestVerifySegmentSubsetIsResumable(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), nil)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(1, doc("a", "keyboard")))
	require.NoError(t, idx.Flush(1))
	require.NoError(t, idx.Insert(2, doc("b", "mouse")))
	require.NoError(t, idx.Flush(2))

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	heap := mapHeap{"a": true, "b": true}
	total := 0
	for _, e := range entries {
		report, err := idx.Verify(VerifyOptions{SegmentIDs: []catalog.SegmentID{e.Meta.SegmentID}}, heap)
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.Equal(t, 1, report.SegmentsChecked)
		total += report.DocsChecked
	}
	assert.Equal(t, 2, total)
}

func TestVerifySkipsConsumedSegments(t *testing.T) {
	idx, _, err := Build(t.TempDir(), testOptions(t), []segment.Document{doc("1", "keyboard")})
	require.NoError(t, err)
	defer idx.Close()

	entries, err := idx.Directory().SegmentMetas()
	require.NoError(t, err)
	require.NoError(t, idx.Directory().MarkXmax(entries[0].Handle, entries[0].Meta, 50))

	report, err := idx.Verify(VerifyOptions{}, mapHeap{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.SegmentsChecked)
	assert.True(t, report.OK())
}

func TestSampledIsDeterministic(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	first := make([]bool, len(keys))
	for i, k := range keys {
		first[i] = sampled(k, 0.5)
	}
	for i, k := range keys {
		assert.Equal(t, first[i], sampled(k, 0.5))
	}

	for _, k := range keys {
		assert.True(t, sampled(k, 0))
		assert.True(t, sampled(k, 1))
	}
}
