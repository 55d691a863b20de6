package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateInSegments(t *testing.T) {
	r, ids := openTestReader(t)

	specs := []AggregateSpec{
		{Kind: AggCount},
		{Kind: AggSum, Field: "rating"},
		{Kind: AggMin, Field: "rating"},
		{Kind: AggMax, Field: "rating"},
		{Kind: AggTerms, Field: "description"},
	}

	partials, err := r.AggregateInSegments(nil, matchQuery("keyboard"), specs)
	require.NoError(t, err)
	require.Len(t, partials, 5)

	assert.Equal(t, int64(3), partials[0].Count)
	assert.Equal(t, 11.0, partials[1].Sum)
	assert.Equal(t, 2.0, partials[2].Min)
	assert.Equal(t, 5.0, partials[3].Max)

	// Per-segment partials merged pairwise equal the all-at-once buckets.
	a, err := r.AggregateInSegments(ids[:1], matchQuery("keyboard"), specs)
	require.NoError(t, err)
	b, err := r.AggregateInSegments(ids[1:], matchQuery("keyboard"), specs)
	require.NoError(t, err)
	merged := MergePartials(a, b)
	assert.Equal(t, partials[0].Count, merged[0].Count)
	assert.Equal(t, partials[1].Sum, merged[1].Sum)
	assert.Equal(t, partials[2].Min, merged[2].Min)
	assert.Equal(t, partials[3].Max, merged[3].Max)
}

func TestMergePartialsHandlesEmptySides(t *testing.T) {
	b := []Partial{{Count: 2, Sum: 3, Min: 1, Max: 2, HasMinMax: true}}
	assert.Equal(t, b, MergePartials(nil, b))

	a := []Partial{{Count: 1}}
	merged := MergePartials(a, []Partial{{Count: 4, Min: 7, Max: 9, HasMinMax: true}})
	assert.Equal(t, int64(5), merged[0].Count)
	assert.Equal(t, 7.0, merged[0].Min)
	assert.Equal(t, 9.0, merged[0].Max)
}

func TestMergePartialsTerms(t *testing.T) {
	a := []Partial{{Terms: map[string]int64{"x": 1}}}
	b := []Partial{{Terms: map[string]int64{"x": 2, "y": 1}}}
	merged := MergePartials(a, b)
	assert.Equal(t, int64(3), merged[0].Terms["x"])
	assert.Equal(t, int64(1), merged[0].Terms["y"])
}
