package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradex-labs/bm25index/internal/config"
	"github.com/paradex-labs/bm25index/internal/query"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// fakeHost is a scripted planner for Finalize tests.
type fakeHost struct {
	match      *query.Query
	orderBy    []segment.OrderByFeature
	dirs       []segment.SortDirection
	projection []string
	limit      int
	offset     int
	hasLimit   bool
	needScores bool
	countOnly  bool
	aggregates []segment.AggregateSpec
}

func (h *fakeHost) PushedDownMatch() *query.Query { return h.match }
func (h *fakeHost) RequestedOrderBy() ([]segment.OrderByFeature, []segment.SortDirection) {
	return h.orderBy, h.dirs
}
func (h *fakeHost) RequestedProjection() []string       { return h.projection }
func (h *fakeHost) Limit() (int, int, bool)             { return h.limit, h.offset, h.hasLimit }
func (h *fakeHost) NeedsScores() bool                   { return h.needScores }
func (h *fakeHost) CountOnly() bool                     { return h.countOnly }
func (h *fakeHost) Aggregates() []segment.AggregateSpec { return h.aggregates }

func planSchema(t *testing.T) *segment.Schema {
	t.Helper()
	opts := config.NewIndexOptions("id")
	opts.TextFields = map[string]config.FieldOptions{
		"title": {Fast: true, Stored: true},
		"body":  {Stored: true}, // not fast
	}
	opts.NumericFields = map[string]config.FieldOptions{
		"rating": {Fast: true},
	}
	require.NoError(t, opts.Validate())
	return segment.NewSchema(opts)
}

func TestFinalizeModeSelection(t *testing.T) {
	schema := planSchema(t)
	match := query.Term("title", "x")

	tests := []struct {
		name string
		host *fakeHost
		mode Mode
	}{
		{
			"count only wins over everything",
			&fakeHost{match: match, countOnly: true, hasLimit: true, limit: 5,
				orderBy: []segment.OrderByFeature{{Kind: segment.FeatureScore}}},
			ModeCountOnly,
		},
		{
			"aggregation pass-through",
			&fakeHost{match: match, aggregates: []segment.AggregateSpec{{Kind: segment.AggCount}}},
			ModeAggregation,
		},
		{
			"order by fast field with limit is top-N",
			&fakeHost{match: match, hasLimit: true, limit: 10,
				orderBy: []segment.OrderByFeature{{Kind: segment.FeatureField, Field: "rating"}}},
			ModeTopN,
		},
		{
			"order by score with limit is top-N",
			&fakeHost{match: match, hasLimit: true, limit: 10,
				orderBy: []segment.OrderByFeature{{Kind: segment.FeatureScore}}},
			ModeTopN,
		},
		{
			"order by non-fast field falls back to normal",
			&fakeHost{match: match, hasLimit: true, limit: 10,
				orderBy: []segment.OrderByFeature{{Kind: segment.FeatureField, Field: "body"}}},
			ModeNormal,
		},
		{
			"single string fast field projection",
			&fakeHost{match: match, projection: []string{"title"}},
			ModeFastFieldString,
		},
		{
			"numeric-only fast projection",
			&fakeHost{match: match, projection: []string{"rating"}},
			ModeFastFieldNumeric,
		},
		{
			"mixed fast projection",
			&fakeHost{match: match, projection: []string{"title", "rating"}},
			ModeFastFieldMixed,
		},
		{
			"non-fast projection needs the heap",
			&fakeHost{match: match, projection: []string{"body"}},
			ModeNormal,
		},
		{
			"no projection, no ordering",
			&fakeHost{match: match},
			ModeNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Finalize(tt.host, schema)
			assert.Equal(t, tt.mode, plan.Mode)
		})
	}
}

func TestFinalizeCarriesLimitAndScores(t *testing.T) {
	schema := planSchema(t)
	host := &fakeHost{
		match:      query.Term("title", "x"),
		hasLimit:   true,
		limit:      7,
		offset:     3,
		needScores: true,
		orderBy:    []segment.OrderByFeature{{Kind: segment.FeatureScore}},
		dirs:       []segment.SortDirection{{Descending: true}},
	}
	plan := Finalize(host, schema)
	assert.Equal(t, 7, plan.Limit)
	assert.Equal(t, 3, plan.Offset)
	assert.True(t, plan.HasLimit)
	assert.True(t, plan.NeedScores)
	assert.Equal(t, ModeTopN, plan.Mode)
}
