package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentIndexResolvesEntries(t *testing.T) {
	entries := make([]SegmentEntry, 0, 16)
	for i := 0; i < 16; i++ {
		entries = append(entries, SegmentEntry{
			Meta: SegmentMetaEntry{SegmentID: NewSegmentID(), NumDocs: uint64(i)},
		})
	}

	idx := BuildSegmentIndex(entries)
	require.Equal(t, 16, idx.Len())

	for _, e := range entries {
		got, ok := idx.Get(e.Meta.SegmentID)
		require.True(t, ok)
		assert.Equal(t, e.Meta.NumDocs, got.Meta.NumDocs)
	}

	_, ok := idx.Get(NewSegmentID())
	assert.False(t, ok)
}

func TestSegmentIndexEmpty(t *testing.T) {
	idx := BuildSegmentIndex(nil)
	assert.Equal(t, 0, idx.Len())
	_, ok := idx.Get(NewSegmentID())
	assert.False(t, ok)
}
