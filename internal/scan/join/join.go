// Package join implements the deferred-visibility helpers joins use: a
// scan variant that emits packed document identifiers instead of
// resolved heap row ids, a downstream Lookup node that resolves them
// against the index's fast-field, and a downstream VisibilityFilter
// node that batches MVCC checks after the join.
package join

import (
	"github.com/paradex-labs/bm25index/internal/catalog"
)

// DocAddress is the packed identifier a joined scan emits: a segment
// ordinal plus a segment-local doc id, deferred past the join instead
// of resolving to a real ctid immediately.
type DocAddress struct {
	SegmentOrdinal int
	DocID          string
}

// LookupEntry is what the Lookup node hands downstream: the resolved
// ctid for one DocAddress, plus whatever fast fields the plan projected
// alongside it.
type LookupEntry struct {
	Ctid   uint64
	Fields map[string]any
}

// Lookup resolves packed DocAddress values to real ctids via each
// segment's ctid fast field, without touching heap visibility — that is VisibilityFilter's job.
type Lookup struct {
	// CtidOf resolves (segment ordinal, doc id) to the segment's ctid
	// fast-field value.
	CtidOf func(segmentOrdinal int, docID string) (uint64, map[string]any, bool)
}

func (l *Lookup) Resolve(addrs []DocAddress) []LookupEntry {
	out := make([]LookupEntry, 0, len(addrs))
	for _, a := range addrs {
		ctid, fields, ok := l.CtidOf(a.SegmentOrdinal, a.DocID)
		if !ok {
			continue
		}
		out = append(out, LookupEntry{Ctid: ctid, Fields: fields})
	}
	return out
}

// HeapRelationState tracks whether a heap relation's ctid lineage has
// already been verified for visibility somewhere above
// this point in the plan.
type HeapRelationState int

const (
	Unverified HeapRelationState = iota
	Verified
)

// BarrierKind enumerates the plan-node shapes that act as barriers:
// any of these forces a VisibilityFilter insertion for a
// relation still Unverified at that point.
type BarrierKind int

const (
	BarrierLimit BarrierKind = iota
	BarrierAggregation
	BarrierDistinct
	BarrierWindow
	BarrierSortFetch
	BarrierNonInnerJoin
	BarrierLineageDrop // a projection that discards a ctid column
	BarrierPlanRoot
)

// PlanNode is the minimal shape the VisibilityFilter insertion rule
// needs to walk: which heap relations' ctid lineage cross this node, and
// whether the node itself is one of the barrier kinds.
type PlanNode struct {
	Relations []string
	Barrier   *BarrierKind
	HasFilter map[string]bool // relations this node already filters
	Children  []*PlanNode
}

// InsertVisibilityFilters is the optimizer rule that tracks
// per-heap-relation verification state bottom-up and inserts a
// VisibilityFilter at a barrier, at a lineage-drop point, or at the
// plan root, for any relation still Unverified. It is idempotent:
// running it twice over a plan that already carries filters inserts
// nothing new.
func InsertVisibilityFilters(root *PlanNode) map[string]HeapRelationState {
	state := make(map[string]HeapRelationState)
	visit(root, state)
	return state
}

// visit returns, for the subtree rooted at n, the set of relations that
// remain Unverified once n itself has been considered — mutating n's
// HasFilter map when it inserts a filter.
func visit(n *PlanNode, globalState map[string]HeapRelationState) map[string]bool {
	if n == nil {
		return nil
	}
	unverified := make(map[string]bool)
	for _, child := range n.Children {
		for rel := range visit(child, globalState) {
			unverified[rel] = true
		}
	}
	for _, rel := range n.Relations {
		if globalState[rel] != Verified {
			unverified[rel] = true
		}
	}

	if n.HasFilter == nil {
		n.HasFilter = make(map[string]bool)
	}

	needsFilterHere := n.Barrier != nil
	if !needsFilterHere {
		// A lineage-drop projection (no declared barrier, but the node
		// itself names no relations while children still carry
		// unverified ones) also forces a filter.
		needsFilterHere = len(n.Relations) == 0 && len(unverified) > 0 && len(n.Children) > 0
	}

	if needsFilterHere {
		for rel := range unverified {
			if n.HasFilter[rel] {
				// Idempotent: already filtered at this node by a
				// previous pass.
				globalState[rel] = Verified
				continue
			}
			n.HasFilter[rel] = true
			globalState[rel] = Verified
		}
		unverified = nil
	}

	for rel := range unverified {
		globalState[rel] = Unverified
	}
	return unverified
}

// FinalizeRoot applies the root-level catch-all rule: any relation still
// Unverified at the plan root gets a filter there.
func FinalizeRoot(root *PlanNode, state map[string]HeapRelationState) {
	if root == nil {
		return
	}
	if root.HasFilter == nil {
		root.HasFilter = make(map[string]bool)
	}
	for rel, st := range state {
		if st != Verified && !root.HasFilter[rel] {
			root.HasFilter[rel] = true
			state[rel] = Verified
		}
	}
}

// SegmentAt resolves a DocAddress's segment ordinal against the scan's
// segment-id list, for callers wiring a Lookup's CtidOf.
func SegmentAt(ids []catalog.SegmentID, ordinal int) (catalog.SegmentID, bool) {
	if ordinal < 0 || ordinal >= len(ids) {
		return catalog.SegmentID{}, false
	}
	return ids[ordinal], true
}
