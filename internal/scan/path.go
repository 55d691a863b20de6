package scan

import (
	"github.com/paradex-labs/bm25index/internal/segment"
)

// PathCandidate is what the scan node reports back to the host planner
// during path generation: startup/total cost, whether it can
// satisfy the plan's ORDER BY without a separate sort, and whether the
// scan is safe to run with multiple workers.
type PathCandidate struct {
	StartupCost   float64
	TotalCost     float64
	OutputOrdered bool
	ParallelSafe  bool
	EstimatedRows int
}

// startupCostPerSegment approximates the fixed overhead of opening a
// segment reader and constructing a weight, amortized once per
// candidate segment rather than per row.
const startupCostPerSegment = 1.0

// costPerRow approximates the marginal cost of scoring and emitting one
// matched row, tuned relative to startupCostPerSegment so a plan with
// very few segments but many matches still prefers this path over a
// full heap scan, the usual shape for a selective full-text predicate.
const costPerRow = 0.01

// GeneratePath registers a candidate path when a predicate containing
// the index's match operator is pushed into a scan. totalRows is the
// host's visible row count across every segment, used to scale
// EstimateDocs.
func GeneratePath(reader *segment.SearchReader, compiled segment.Query, numSegments, totalRows int, plan *Plan, schema *segment.Schema) (*PathCandidate, error) {
	estimated, err := reader.EstimateDocs(compiled, totalRows)
	if err != nil {
		return nil, err
	}

	ordered := plan.Mode == ModeTopN
	if !ordered && len(plan.OrderBy) == 0 {
		// An unordered scan still "aligns" with a trivial ORDER BY.
		ordered = true
	}

	return &PathCandidate{
		StartupCost:   startupCostPerSegment * float64(numSegments),
		TotalCost:     startupCostPerSegment*float64(numSegments) + costPerRow*float64(estimated),
		OutputOrdered: ordered,
		ParallelSafe:  plan.Mode != ModeTopN || numSegments > 1,
		EstimatedRows: estimated,
	}, nil
}
