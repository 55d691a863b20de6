package join

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/catalog"
)

func barrier(k BarrierKind) *BarrierKind { return &k }

func TestLookupResolvesAddresses(t *testing.T) {
	ctids := map[DocAddress]uint64{
		{SegmentOrdinal: 0, DocID: "a"}: 100,
		{SegmentOrdinal: 1, DocID: "b"}: 200,
	}
	l := &Lookup{CtidOf: func(ord int, doc string) (uint64, map[string]any, bool) {
		ctid, ok := ctids[DocAddress{SegmentOrdinal: ord, DocID: doc}]
		return ctid, map[string]any{"ord": ord}, ok
	}}

	entries := l.Resolve([]DocAddress{
		{SegmentOrdinal: 0, DocID: "a"},
		{SegmentOrdinal: 5, DocID: "gone"},
		{SegmentOrdinal: 1, DocID: "b"},
	})
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(100), entries[0].Ctid)
	assert.Equal(t, uint64(200), entries[1].Ctid)
}

func TestFilterInsertedAtBarrier(t *testing.T) {
	scanNode := &PlanNode{Relations: []string{"orders"}}
	limit := &PlanNode{Barrier: barrier(BarrierLimit), Children: []*PlanNode{scanNode}}

	state := InsertVisibilityFilters(limit)
	FinalizeRoot(limit, state)

	assert.True(t, limit.HasFilter["orders"])
	assert.Equal(t, Verified, state["orders"])
}

func TestFilterInsertedAtLineageDrop(t *testing.T) {
	scanNode := &PlanNode{Relations: []string{"orders"}}
	projection := &PlanNode{Children: []*PlanNode{scanNode}} // drops the ctid column

	state := InsertVisibilityFilters(projection)
	assert.True(t, projection.HasFilter["orders"])
	assert.Equal(t, Verified, state["orders"])
}

func TestFilterInsertedAtRootWhenNoBarrierExists(t *testing.T) {
	root := &PlanNode{Relations: []string{"orders"}}

	state := InsertVisibilityFilters(root)
	assert.Equal(t, Unverified, state["orders"])

	FinalizeRoot(root, state)
	assert.True(t, root.HasFilter["orders"])
	assert.Equal(t, Verified, state["orders"])
}

func TestFilterCoversEveryRelationCrossingABarrier(t *testing.T) {
	left := &PlanNode{Relations: []string{"orders"}}
	right := &PlanNode{Relations: []string{"items"}}
	joinNode := &PlanNode{Barrier: barrier(BarrierNonInnerJoin), Children: []*PlanNode{left, right}}

	state := InsertVisibilityFilters(joinNode)
	assert.True(t, joinNode.HasFilter["orders"])
	assert.True(t, joinNode.HasFilter["items"])
	assert.Equal(t, Verified, state["orders"])
	assert.Equal(t, Verified, state["items"])
}

func TestInsertVisibilityFiltersIsIdempotent(t *testing.T) {
	scanNode := &PlanNode{Relations: []string{"orders"}}
	limit := &PlanNode{Barrier: barrier(BarrierLimit), Children: []*PlanNode{scanNode}}

	state := InsertVisibilityFilters(limit)
	FinalizeRoot(limit, state)
	firstPass := map[string]bool{}
	for rel := range limit.HasFilter {
		firstPass[rel] = true
	}

	// A second pass over the already-filtered plan inserts nothing new.
	state = InsertVisibilityFilters(limit)
	FinalizeRoot(limit, state)
	assert.Equal(t, firstPass, limit.HasFilter)
	assert.Len(t, limit.HasFilter, 1)
}

func TestSegmentAt(t *testing.T) {
	ids := []catalog.SegmentID{catalog.NewSegmentID(), catalog.NewSegmentID()}

	got, ok := SegmentAt(ids, 1)
	require.True(t, ok)
	assert.Equal(t, ids[1], got)

	_, ok = SegmentAt(ids, 2)
	assert.False(t, ok)
	_, ok = SegmentAt(ids, -1)
	assert.False(t, ok)
}

func TestPipeRoundTrip(t *testing.T) {
	p := NewPipe(2)
	ctx := context.Background()

	require.NoError(t, p.Send(ctx, Frame{StreamID: 1, Payload: []byte("hello")}))
	require.NoError(t, p.Send(ctx, Frame{StreamID: 2, Payload: []byte("world")}))
	p.Close()

	f, err := p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), f.StreamID)
	assert.Equal(t, []byte("hello"), f.Payload)

	f, err = p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), f.StreamID)

	_, err = p.Recv(ctx)
	require.Error(t, err, "closed pipe with no pending frame")
}

func TestPipeSendObservesCancellation(t *testing.T) {
	p := NewPipe(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Send(ctx, Frame{StreamID: 1}))
	err := p.Send(ctx, Frame{StreamID: 2}) // buffer full, blocks until timeout
	require.Error(t, err)
}
