// Package merger implements the background merger: the layered size
// policy that groups segments for merging, the merge-lock
// protocol that makes a merge crash-safe, and the stale-MergeEntry
// garbage collection that recovers from a merger that died mid-flight.
package merger

import (
	"sort"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/obs"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// MinSegmentsPerLayer is how many segments must land in the same layer
// before the merger combines them.
const MinSegmentsPerLayer = 2

// Layer buckets a segment's byte size into the configured layer-size
// vector: layer i holds segments whose size is in [layerSizes[i-1],
// layerSizes[i]), with the last layer catching everything above the
// largest configured threshold.
func Layer(byteSize uint64, layerSizes []int64) int {
	for i, bound := range layerSizes {
		if int64(byteSize) < bound {
			return i
		}
	}
	return len(layerSizes)
}

// SelectCandidates groups visible, unclaimed segments by layer and
// returns the ids of the first layer with at least MinSegmentsPerLayer
// members. Segments already
// named by excluded (an in-progress MergeEntry) are never selected.
func SelectCandidates(entries []catalog.SegmentEntry, layerSizes []int64, excluded map[catalog.SegmentID]bool) []catalog.SegmentID {
	byLayer := make(map[int][]catalog.SegmentEntry)
	for _, e := range entries {
		if e.Meta.XmaxTxn != 0 || excluded[e.Meta.SegmentID] {
			continue
		}
		l := Layer(e.Meta.ByteSize, layerSizes)
		byLayer[l] = append(byLayer[l], e)
	}

	layers := make([]int, 0, len(byLayer))
	for l := range byLayer {
		layers = append(layers, l)
	}
	sort.Ints(layers)

	for _, l := range layers {
		group := byLayer[l]
		if len(group) < MinSegmentsPerLayer {
			continue
		}
		n := len(group)
		if n > catalog.MaxMergeSegments {
			n = catalog.MaxMergeSegments
		}
		ids := make([]catalog.SegmentID, 0, n)
		for i := 0; i < n; i++ {
			ids = append(ids, group[i].Meta.SegmentID)
		}
		return ids
	}
	return nil
}

// Merger drives one index's background merge/vacuum coordination.
type Merger struct {
	BaseDir string
	Schema  *segment.Schema
	Dir     *catalog.Directory
	Log     *zap.SugaredLogger
}

// New builds a Merger bound to dir's index.
func New(baseDir string, schema *segment.Schema, dir *catalog.Directory) *Merger {
	return &Merger{BaseDir: baseDir, Schema: schema, Dir: dir, Log: obs.Nop()}
}

// RunOnce executes the five-step merge protocol once, given
// a candidate set already chosen by SelectCandidates. pid and xid
// identify this merger process and transaction for MergeEntry bookkeeping
// and for stale-entry crash recovery.
func (m *Merger) RunOnce(pid, xid uint64, candidates []catalog.SegmentID, aliveDocID func(segmentIdx int, docKey string) bool) error {
	if len(candidates) < MinSegmentsPerLayer {
		return nil
	}

	// Step 1: acquire merge lock, record the MergeEntry.
	if err := m.Dir.AcquireMergeLock(); err != nil {
		return err
	}
	var entry catalog.MergeEntry
	entry.PID = pid
	entry.Xmin = xid
	entry.NumSegments = uint32(len(candidates))
	copy(entry.SegmentIDs[:], candidates)
	if _, err := m.Dir.AppendMergeEntry(entry); err != nil {
		_ = m.Dir.ReleaseMergeLock()
		return err
	}

	// Step 2: release the lock while the merge itself runs — merging
	// does not require excluding readers, only excluding other mergers
	// from double-claiming the same segments, which the MergeEntry
	// already records.
	if err := m.Dir.ReleaseMergeLock(); err != nil {
		return err
	}

	// Step 3: open readers for the candidate segments and merge them.
	readers := make([]bleve.Index, 0, len(candidates))
	for _, id := range candidates {
		r, err := segment.Open(segment.NewSegmentDir(m.BaseDir, id))
		if err != nil {
			return err
		}
		readers = append(readers, r)
	}
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	destID := catalog.NewSegmentID()
	destDir := segment.NewSegmentDir(m.BaseDir, destID)
	alive := func(readerIdx int) func(docID string) bool {
		return func(docID string) bool { return aliveDocID == nil || aliveDocID(readerIdx, docID) }
	}
	handle, err := segment.Merge(destDir, m.Schema, readers, alive)
	if err != nil {
		return err
	}

	// Step 4: reacquire the lock, append the new entry, mark consumed
	// entries with their xmax.
	if err := m.Dir.AcquireMergeLock(); err != nil {
		return err
	}
	defer func() { _ = m.Dir.ReleaseMergeLock() }()

	newMeta := catalog.SegmentMetaEntry{
		SegmentID:  destID,
		Xmin:       xid,
		ByteSize:   handle.ByteSize,
		NumDocs:    handle.NumDocs,
		Components: handle.Components,
	}
	if _, err := m.Dir.AppendSegment(newMeta); err != nil {
		return err
	}

	consumed := make(map[catalog.SegmentID]bool, len(candidates))
	for _, id := range candidates {
		consumed[id] = true
	}
	entries, err := m.Dir.SegmentMetas()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if consumed[e.Meta.SegmentID] {
			if err := m.Dir.MarkXmax(e.Handle, e.Meta, xid); err != nil {
				return err
			}
		}
	}

	m.Log.Debugw("merge committed",
		"segment", destID.String(),
		"consumed", len(candidates),
		"docs", handle.NumDocs,
		"bytes", handle.ByteSize)

	// Step 5: the MergeEntry itself is removed by the next
	// GarbageCollectMergeEntries sweep (this merger's own pid is still
	// alive, so it would not be collected here — callers run the sweep
	// after a merger exits, or periodically).
	return nil
}

// RecoverStaleMerges runs the crash-recovery sweep: a MergeEntry
// whose pid is no longer live is removed; if the entry's segments were
// never consumed (step 4 never ran), they remain xmax = Invalid and are
// simply eligible for selection again on the next pass.
func (m *Merger) RecoverStaleMerges(isProcessAlive func(pid uint64) bool) (int, error) {
	if err := m.Dir.AcquireMergeLock(); err != nil {
		return 0, err
	}
	defer func() { _ = m.Dir.ReleaseMergeLock() }()
	return m.Dir.GarbageCollectMergeEntries(isProcessAlive)
}

// ExcludedByMerges returns the segment ids currently claimed by a live
// in-progress merge, used to keep SelectCandidates from double-claiming
// them.
func (m *Merger) ExcludedByMerges() (map[catalog.SegmentID]bool, error) {
	entries, err := m.Dir.MergeEntries()
	if err != nil {
		return nil, err
	}
	excluded := make(map[catalog.SegmentID]bool)
	for _, e := range entries {
		for i := 0; i < int(e.NumSegments); i++ {
			excluded[e.SegmentIDs[i]] = true
		}
	}
	return excluded, nil
}
