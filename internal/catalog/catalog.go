// Package catalog implements the segment directory and metadata: the
// segment list, merge-in-progress list, vacuum-candidate list,
// layer-size configuration and the cleanup/merge locks, all rooted at
// one metadata page per index. The merge lock and cleanup lock are
// modeled with gofrs/flock advisory file locks — a distinct, logical
// exclusion mechanism layered above the Block Manager's own per-page
// mutex, independent of ordinary page locking.
package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/paradex-labs/bm25index/internal/block"
	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/pagelist"
)

// Directory owns the metadata page's three lists and the two logical
// locks that serialize merge and vacuum against readers.
type Directory struct {
	mgr *block.Manager

	segments *pagelist.List
	merges   *pagelist.List
	vacuums  *pagelist.List

	mergeLock   *flock.Flock
	cleanupLock *flock.Flock

	LayerSizes           []int64
	BackgroundLayerSizes []int64
}

// Header is the well-known layout persisted at the index's metadata
// block: where each list's first page lives.
type Header struct {
	SegmentsStart block.Blockno
	MergesStart   block.Blockno
	VacuumsStart  block.Blockno
}

func newSegmentMetaEntry() pagelist.Item { return &SegmentMetaEntry{} }
func newMergeEntry() pagelist.Item       { return &MergeEntry{} }
func newVacuumEntry() pagelist.Item      { return &VacuumEntry{} }

// Create builds a brand-new metadata directory: three empty lists and the
// lock files, under lockDir (typically alongside the index's files).
func Create(mgr *block.Manager, lockDir string, layerSizes, backgroundLayerSizes []int64) (*Directory, Header, error) {
	segments, segStart, err := pagelist.Create(mgr, (&SegmentMetaEntry{}).Size(), newSegmentMetaEntry)
	if err != nil {
		return nil, Header{}, err
	}
	merges, mergeStart, err := pagelist.Create(mgr, (&MergeEntry{}).Size(), newMergeEntry)
	if err != nil {
		return nil, Header{}, err
	}
	vacuums, vacStart, err := pagelist.Create(mgr, (&VacuumEntry{}).Size(), newVacuumEntry)
	if err != nil {
		return nil, Header{}, err
	}

	d, err := newDirectory(mgr, lockDir, segments, merges, vacuums, layerSizes, backgroundLayerSizes)
	if err != nil {
		return nil, Header{}, err
	}
	return d, Header{SegmentsStart: segStart, MergesStart: mergeStart, VacuumsStart: vacStart}, nil
}

// Open attaches to an existing directory given its persisted header.
func Open(mgr *block.Manager, lockDir string, header Header, layerSizes, backgroundLayerSizes []int64) (*Directory, error) {
	segments := pagelist.Open(mgr, header.SegmentsStart, (&SegmentMetaEntry{}).Size(), newSegmentMetaEntry)
	merges := pagelist.Open(mgr, header.MergesStart, (&MergeEntry{}).Size(), newMergeEntry)
	vacuums := pagelist.Open(mgr, header.VacuumsStart, (&VacuumEntry{}).Size(), newVacuumEntry)
	return newDirectory(mgr, lockDir, segments, merges, vacuums, layerSizes, backgroundLayerSizes)
}

func newDirectory(mgr *block.Manager, lockDir string, segments, merges, vacuums *pagelist.List, layerSizes, backgroundLayerSizes []int64) (*Directory, error) {
	return &Directory{
		mgr:                  mgr,
		segments:             segments,
		merges:               merges,
		vacuums:              vacuums,
		mergeLock:            flock.New(filepath.Join(lockDir, "merge.lock")),
		cleanupLock:          flock.New(filepath.Join(lockDir, "cleanup.lock")),
		LayerSizes:           layerSizes,
		BackgroundLayerSizes: backgroundLayerSizes,
	}, nil
}

// --- Segment list ---

// SegmentEntry pairs a deserialized SegmentMetaEntry with its list handle.
type SegmentEntry struct {
	Meta   SegmentMetaEntry
	Handle pagelist.Handle
}

// AppendSegment records a newly flushed segment: the writer appends an
// entry stamped with its own transaction id as xmin.
func (d *Directory) AppendSegment(meta SegmentMetaEntry) (pagelist.Handle, error) {
	return d.segments.Append(&meta)
}

// SegmentMetas returns every segment entry, visible or not; callers filter
// through the mvcc package's visibility rules.
func (d *Directory) SegmentMetas() ([]SegmentEntry, error) {
	entries, err := d.segments.List()
	if err != nil {
		return nil, err
	}
	out := make([]SegmentEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, SegmentEntry{Meta: *e.Item.(*SegmentMetaEntry), Handle: e.Handle})
	}
	return out, nil
}

// MarkXmax stamps a segment's deletion transaction, e.g. when a merger
// consumes it or vacuum recycles it.
func (d *Directory) MarkXmax(h pagelist.Handle, meta SegmentMetaEntry, xmax uint64) error {
	meta.XmaxTxn = xmax
	return d.segments.Update(h, &meta)
}

// Recyclable reports whether xmax has committed and is no longer visible
// to any snapshot in the cluster: callers pass the oldest
// active snapshot's xid as horizon.
func Recyclable(meta SegmentMetaEntry, horizon uint64) bool {
	return meta.XmaxTxn != 0 && meta.XmaxTxn < horizon
}

// --- Merge list ---

// AcquireMergeLock takes the exclusive, cross-process merge lock.
// Callers must Release when done.
func (d *Directory) AcquireMergeLock() error {
	ok, err := d.mergeLock.TryLock()
	if err != nil {
		return errs.Concurrency(errs.CodeConcurrencyStaleMergeEntry, "failed to acquire merge lock", err)
	}
	if !ok {
		return errs.Concurrency(errs.CodeConcurrencyStaleMergeEntry, "merge lock already held", nil)
	}
	return nil
}

func (d *Directory) ReleaseMergeLock() error {
	return d.mergeLock.Unlock()
}

// AppendMergeEntry records an in-progress merge.
func (d *Directory) AppendMergeEntry(e MergeEntry) (pagelist.Handle, error) {
	if e.NumSegments > MaxMergeSegments {
		return pagelist.Handle{}, errs.Storage(errs.CodeStorageMetadataCorrupt,
			fmt.Sprintf("merge entry names %d segments, max is %d", e.NumSegments, MaxMergeSegments), nil)
	}
	return d.merges.Append(&e)
}

// MergeEntries lists every in-progress merge.
func (d *Directory) MergeEntries() ([]MergeEntry, error) {
	entries, err := d.merges.List()
	if err != nil {
		return nil, err
	}
	out := make([]MergeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e.Item.(*MergeEntry))
	}
	return out, nil
}

// GarbageCollectMergeEntries sweeps stale MergeEntry records whose pid is
// no longer live: crash between lock-acquire and
// release leaves a dangling entry that the next merge/vacuum call cleans
// up. pagelist's generic GC only inspects Xmax(), which MergeEntry always
// reports as 0, so the sweep runs over a second view of the same pages
// whose items decode as deadMergeEntry: Xmax() is 1 for a dead pid, and
// GarbageCollect(2) removes exactly those entries.
func (d *Directory) GarbageCollectMergeEntries(isProcessAlive func(pid uint64) bool) (int, error) {
	list, err := d.merges.List()
	if err != nil {
		return 0, err
	}
	dead := make(map[uint64]bool)
	for _, e := range list {
		if pid := e.Item.(*MergeEntry).PID; !isProcessAlive(pid) {
			dead[pid] = true
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}
	sweep := pagelist.Open(d.mgr, d.merges.StartBlockno(), (&MergeEntry{}).Size(), func() pagelist.Item {
		return &deadMergeEntry{dead: dead}
	})
	return sweep.GarbageCollect(2)
}

// deadMergeEntry decodes a MergeEntry and reports Xmax() == 1 when its
// pid is in dead, making it eligible for pagelist.GarbageCollect(horizon>1).
type deadMergeEntry struct {
	MergeEntry
	dead map[uint64]bool
}

func (t *deadMergeEntry) Xmax() uint64 {
	if t.dead[t.PID] {
		return 1
	}
	return 0
}

// --- Vacuum list ---

func (d *Directory) QueueVacuum(e VacuumEntry) (pagelist.Handle, error) {
	return d.vacuums.Append(&e)
}

func (d *Directory) VacuumEntries() ([]VacuumEntry, error) {
	entries, err := d.vacuums.List()
	if err != nil {
		return nil, err
	}
	out := make([]VacuumEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e.Item.(*VacuumEntry))
	}
	return out, nil
}

// CompleteVacuum removes a segment's vacuum entry once its delete bitset
// has been rewritten.
func (d *Directory) CompleteVacuum(segmentID SegmentID) error {
	sweep := pagelist.Open(d.mgr, d.vacuums.StartBlockno(), (&VacuumEntry{}).Size(), func() pagelist.Item {
		return &completedVacuumEntry{done: segmentID}
	})
	_, err := sweep.GarbageCollect(2)
	return err
}

// completedVacuumEntry decodes a VacuumEntry and reports Xmax() == 1 for
// the completed segment, so GarbageCollect(2) removes only its entries.
type completedVacuumEntry struct {
	VacuumEntry
	done SegmentID
}

func (t *completedVacuumEntry) Xmax() uint64 {
	if t.SegmentID == t.done {
		return 1
	}
	return 0
}

// --- Cleanup lock ---

// CleanupLockShared is held by readers for their scan's lifetime; it
// prevents a concurrent exclusive acquisition (vacuum) from recycling
// pages out from under them.
func (d *Directory) CleanupLockShared() (func() error, error) {
	if err := d.cleanupLock.RLock(); err != nil {
		return nil, errs.Concurrency(errs.CodeConcurrencyStaleMergeEntry, "failed to take shared cleanup lock", err)
	}
	return d.cleanupLock.Unlock, nil
}

// CleanupLockExclusive is taken by vacuum before recycling pages; it
// blocks until every reader's shared pin has been released.
func (d *Directory) CleanupLockExclusive() (func() error, error) {
	if err := d.cleanupLock.Lock(); err != nil {
		return nil, errs.Concurrency(errs.CodeConcurrencyStaleMergeEntry, "failed to take exclusive cleanup lock", err)
	}
	return d.cleanupLock.Unlock, nil
}

func (d *Directory) Close() error {
	_ = d.mergeLock.Unlock()
	_ = d.cleanupLock.Unlock()
	return nil
}
