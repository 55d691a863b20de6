// Package mvcc decides which segments, and which documents within them,
// are visible to a given snapshot. The host supplies
// commit-status lookups for xmin/xmax stamps and a ctid-visibility check
// for the fast-field masking that happens inside a visible segment; this
// package only implements the predicate, never the transaction manager
// itself.
package mvcc

import "github.com/paradex-labs/bm25index/internal/catalog"

// Snapshot is the host-supplied commit-status oracle: an opaque handle
// through which the index reads xmin/xmax transaction commit states.
type Snapshot interface {
	// Committed reports whether xid's transaction committed before this
	// snapshot was taken.
	Committed(xid uint64) bool
	// InProgress reports whether xid's transaction was still running (from
	// this snapshot's point of view) — distinct from Committed(false)
	// because an aborted xid is neither committed nor in progress.
	InProgress(xid uint64) bool
	// Aborted reports whether xid's transaction aborted.
	Aborted(xid uint64) bool
}

// HeapVisibility is the host's per-row visibility check, consulted
// lazily against a segment's ctid fast field.
type HeapVisibility interface {
	RowVisible(ctid uint64, snap Snapshot) bool
}

// Style selects which of the four directory-construction rules to
// apply.
type Style int

const (
	// StyleSnapshot is the ordinary reader rule: visible(xmin, xmax) per
	// the usual MVCC predicate.
	StyleSnapshot Style = iota
	// StyleLargestSegment exposes only the segment with the greatest
	// NumDocs, used for cardinality estimation.
	StyleLargestSegment
	// StyleAnyCommitted includes every segment whose xmin has committed,
	// regardless of xmax — used by merge/vacuum bookkeeping that must see
	// segments ordinary readers cannot.
	StyleAnyCommitted
	// StyleMergeCandidate is AnyCommitted further restricted to segments
	// with no xmax stamp that are not already named by an in-progress
	// MergeEntry.
	StyleMergeCandidate
)

// AllCommitted is the degenerate Snapshot a single-process diagnostic
// tool uses when it has no transaction manager to consult: every xid is
// treated as committed and none as in-progress or aborted, so Visible
// reduces to "not yet deleted". Not suitable for a live writer/reader
// host — only for read-only inspection of an index nothing else has
// open.
type AllCommitted struct{}

func (AllCommitted) Committed(uint64) bool  { return true }
func (AllCommitted) InProgress(uint64) bool { return false }
func (AllCommitted) Aborted(uint64) bool    { return false }

// Visible reports whether meta's (xmin, xmax) pair is visible to snap: its
// creating transaction must have committed, and its deleting transaction
// (if any) must be invalid, aborted, or still in progress.
func Visible(meta catalog.SegmentMetaEntry, snap Snapshot) bool {
	if !snap.Committed(meta.Xmin) {
		return false
	}
	if meta.XmaxTxn == 0 {
		return true
	}
	if snap.Aborted(meta.XmaxTxn) {
		return true
	}
	if snap.InProgress(meta.XmaxTxn) {
		return true
	}
	return !snap.Committed(meta.XmaxTxn)
}

// Directory presents the subset of segments a given construction style
// may see.
type Directory struct {
	Style      Style
	SegmentIDs []catalog.SegmentID
}

// Build applies style's visibility rule over entries. For StyleSnapshot
// and StyleLargestSegment, snap must be non-nil; for StyleAnyCommitted
// and StyleMergeCandidate a nil snap treats every xmin as committed.
// excluded names segment ids
// already claimed by an in-progress merge, consulted only for
// StyleMergeCandidate.
func Build(entries []catalog.SegmentEntry, style Style, snap Snapshot, excluded map[catalog.SegmentID]bool) Directory {
	dir := Directory{Style: style}

	switch style {
	case StyleSnapshot:
		for _, e := range entries {
			if Visible(e.Meta, snap) {
				dir.SegmentIDs = append(dir.SegmentIDs, e.Meta.SegmentID)
			}
		}

	case StyleLargestSegment:
		var best *catalog.SegmentEntry
		for i := range entries {
			e := &entries[i]
			if !Visible(e.Meta, snap) {
				continue
			}
			if best == nil || e.Meta.NumDocs > best.Meta.NumDocs {
				best = e
			}
		}
		if best != nil {
			dir.SegmentIDs = append(dir.SegmentIDs, best.Meta.SegmentID)
		}

	case StyleAnyCommitted:
		for _, e := range entries {
			if snap == nil || snap.Committed(e.Meta.Xmin) {
				dir.SegmentIDs = append(dir.SegmentIDs, e.Meta.SegmentID)
			}
		}

	case StyleMergeCandidate:
		for _, e := range entries {
			committed := snap == nil || snap.Committed(e.Meta.Xmin)
			if committed && e.Meta.XmaxTxn == 0 && !excluded[e.Meta.SegmentID] {
				dir.SegmentIDs = append(dir.SegmentIDs, e.Meta.SegmentID)
			}
		}
	}

	return dir
}

// AliveBitset composes a segment's on-disk delete bitset with an
// in-memory mask of rows whose ctid is invisible to this snapshot.
// deleted reports ordinals already flagged in the persisted delete
// bitset; the composed predicate additionally consults heapVis for the
// rows that bitset doesn't yet cover.
type AliveBitset struct {
	numDocs int
	deleted func(docID int) bool
	ctidOf  func(docID int) uint64
	heapVis HeapVisibility
	snap    Snapshot
}

// NewAliveBitset builds the composed alive predicate for one segment.
// deleted reports persisted delete-bitset membership; ctidOf resolves a
// segment-local doc id to its heap ctid fast-field value.
func NewAliveBitset(numDocs int, deleted func(docID int) bool, ctidOf func(docID int) uint64, heapVis HeapVisibility, snap Snapshot) *AliveBitset {
	return &AliveBitset{numDocs: numDocs, deleted: deleted, ctidOf: ctidOf, heapVis: heapVis, snap: snap}
}

// Alive reports whether docID is both not in the delete bitset and
// visible in the heap under snap. When heapVis is nil (e.g. merge/vacuum
// paths that never touch heap visibility), only the delete bitset is
// consulted.
func (a *AliveBitset) Alive(docID int) bool {
	if docID < 0 || docID >= a.numDocs {
		return false
	}
	if a.deleted != nil && a.deleted(docID) {
		return false
	}
	if a.heapVis == nil {
		return true
	}
	return a.heapVis.RowVisible(a.ctidOf(docID), a.snap)
}
