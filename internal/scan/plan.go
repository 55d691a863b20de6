// Package scan implements the custom scan executor: the physical plan
// node that replaces the standard index scan, negotiating with a host
// planner over four phases (path generation, plan
// finalization, initialize, execute) and answering unordered, top-N,
// count-only, aggregation and fast-field-projection queries by reading
// from the index alone.
package scan

import (
	"github.com/paradex-labs/bm25index/internal/query"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// Mode is the execution shape plan finalization selects.
type Mode int

const (
	// ModeNormal emits rows with full heap access, used when the
	// projection needs a non-fast column.
	ModeNormal Mode = iota
	// ModeFastFieldString projects a single string fast field — no heap
	// access.
	ModeFastFieldString
	// ModeFastFieldNumeric projects numeric fast fields only — no heap
	// access.
	ModeFastFieldNumeric
	// ModeFastFieldMixed projects both string and numeric fast fields as
	// a composite tuple — no heap access.
	ModeFastFieldMixed
	// ModeTopN is ORDER BY + LIMIT entirely expressible in indexed
	// features.
	ModeTopN
	// ModeCountOnly answers count(*) with the exact number of
	// MVCC-filtered matches, returned as a single count instead of rows.
	ModeCountOnly
	// ModeAggregation passes aggregate buckets through from the index's
	// distributed per-segment collector, merged by the host.
	ModeAggregation
)

// Host is the small planner-negotiation interface standing in for the
// SQL front end: a real grammar/catalog/planner lives elsewhere, but
// the custom scan node still needs to ask it a few things.
type Host interface {
	// PushedDownMatch returns the match-operator query the planner
	// pushed into this scan, already in this package's tagged-union form.
	PushedDownMatch() *query.Query
	// RequestedOrderBy returns ORDER BY features and directions the
	// planner would like honored by the scan itself, if possible.
	RequestedOrderBy() ([]segment.OrderByFeature, []segment.SortDirection)
	// RequestedProjection returns the columns the plan needs to emit.
	RequestedProjection() []string
	// Limit returns (limit, offset, hasLimit).
	Limit() (int, int, bool)
	// NeedsScores reports whether the projection references the BM25
	// score.
	NeedsScores() bool
	// CountOnly reports whether the plan is a bare count(*) aggregate.
	CountOnly() bool
	// Aggregates returns the aggregate buckets the plan wants computed
	// inside the scan instead of above it; empty means none.
	Aggregates() []segment.AggregateSpec
}

// Plan carries one scan's compiled query, ordering, projection,
// limit/offset, need-scores flag and chosen mode.
type Plan struct {
	Query      *query.Query
	Compiled   any // segment.Query, set by the caller after query.Compile
	OrderBy    []segment.OrderByFeature
	Directions []segment.SortDirection
	Projected  []string
	Limit      int
	Offset     int
	HasLimit   bool
	NeedScores bool
	CountOnly  bool
	Aggregates []segment.AggregateSpec
	Mode       Mode
}

// Finalize selects the execution mode from the host's request and the
// schema's fast-field flags.
func Finalize(host Host, schema *segment.Schema) *Plan {
	orderBy, dirs := host.RequestedOrderBy()
	limit, offset, hasLimit := host.Limit()
	projected := host.RequestedProjection()

	plan := &Plan{
		Query:      host.PushedDownMatch(),
		OrderBy:    orderBy,
		Directions: dirs,
		Projected:  projected,
		Limit:      limit,
		Offset:     offset,
		HasLimit:   hasLimit,
		NeedScores: host.NeedsScores(),
		CountOnly:  host.CountOnly(),
		Aggregates: host.Aggregates(),
	}

	switch {
	case plan.CountOnly:
		plan.Mode = ModeCountOnly
	case len(plan.Aggregates) > 0:
		plan.Mode = ModeAggregation
	case hasLimit && len(orderBy) > 0 && allFastOrdering(orderBy, schema):
		plan.Mode = ModeTopN
	case len(projected) > 0 && allFast(projected, schema):
		plan.Mode = classifyFastFieldMode(projected, schema)
	default:
		plan.Mode = ModeNormal
	}

	return plan
}

func allFastOrdering(features []segment.OrderByFeature, schema *segment.Schema) bool {
	for _, f := range features {
		if f.Kind == segment.FeatureField && !schema.IsFast(f.Field) {
			return false
		}
	}
	return true
}

func allFast(fields []string, schema *segment.Schema) bool {
	for _, f := range fields {
		if !schema.IsFast(f) {
			return false
		}
	}
	return true
}

// classifyFastFieldMode distinguishes the String/Numeric/Mixed
// fast-field modes by the kinds of the projected fields.
func classifyFastFieldMode(fields []string, schema *segment.Schema) Mode {
	hasString, hasNumeric := false, false
	for _, f := range fields {
		switch schema.Kinds[f] {
		case "text", "json":
			hasString = true
		default:
			hasNumeric = true
		}
	}
	switch {
	case hasString && hasNumeric:
		return ModeFastFieldMixed
	case hasString:
		return ModeFastFieldString
	default:
		return ModeFastFieldNumeric
	}
}
