package avlarena

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(capacity int) *Tree[int, string, int] {
	arena := make([]Slot[int, string, int], capacity)
	return New[int, string, int](arena)
}

func TestInsertGetRemove(t *testing.T) {
	tr := newTree(16)

	for i := 0; i < 10; i++ {
		_, _, had, err := tr.Insert(i, "v")
		require.NoError(t, err)
		assert.False(t, had)
	}
	assert.Equal(t, 10, tr.Len())
	assert.True(t, tr.AssertOK())

	v, _, ok := tr.Get(5)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	removed, ok := tr.Remove(5)
	require.True(t, ok)
	assert.Equal(t, "v", removed)
	assert.False(t, tr.Contains(5))
	assert.True(t, tr.AssertOK())
}

func TestInsertOverwriteReturnsOldValueAndPreservesTag(t *testing.T) {
	tr := newTree(8)
	_, tag1, had, err := tr.Insert(1, "a")
	require.NoError(t, err)
	require.False(t, had)

	old, tag2, had, err := tr.Insert(1, "b")
	require.NoError(t, err)
	require.True(t, had)
	assert.Equal(t, "a", old)
	assert.Equal(t, tag1, tag2)
}

func TestGetLTE(t *testing.T) {
	tr := newTree(16)
	for _, k := range []int{2, 4, 6, 8} {
		_, _, _, err := tr.Insert(k, "x")
		require.NoError(t, err)
	}
	k, _, _, ok := tr.GetLTE(5)
	require.True(t, ok)
	assert.Equal(t, 4, k)

	_, _, _, ok = tr.GetLTE(1)
	assert.False(t, ok)
}

func TestFullArenaReturnsErrFull(t *testing.T) {
	tr := newTree(2)
	_, _, _, err := tr.Insert(1, "a")
	require.NoError(t, err)
	_, _, _, err = tr.Insert(2, "b")
	require.NoError(t, err)
	_, _, _, err = tr.Insert(3, "c")
	require.Error(t, err)
	assert.IsType(t, ErrFull{}, err)
}

func TestRandomizedInsertRemoveStaysBalanced(t *testing.T) {
	tr := newTree(256)
	rng := rand.New(rand.NewSource(42))
	present := map[int]bool{}

	for i := 0; i < 500; i++ {
		k := rng.Intn(200)
		if rng.Intn(2) == 0 || len(present) > 200 {
			if present[k] {
				_, ok := tr.Remove(k)
				require.True(t, ok)
				delete(present, k)
			}
		} else if !present[k] {
			_, _, _, err := tr.Insert(k, "x")
			require.NoError(t, err)
			present[k] = true
		}
		require.True(t, tr.AssertOK())
	}

	assert.Equal(t, len(present), tr.Len())

	var want []int
	for k := range present {
		want = append(want, k)
	}
	sort.Ints(want)

	var got []int
	for _, e := range tr.InOrder() {
		got = append(got, e.Key)
	}
	assert.Equal(t, want, got)
}
