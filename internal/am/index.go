// Package am implements the index access method: the DML entry points
// build, insert, bulk-delete (vacuum), vacuum-cleanup
// and amcheck-style validation, plus the in-memory builder batching that
// flushes new documents into immutable segments under the metadata
// commit barrier.
package am

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/paradex-labs/bm25index/internal/block"
	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/config"
	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/obs"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// FlushThresholdBytes is the estimated in-memory builder size
// at which a writer flushes its batch as a new segment, independent of
// the background merger's own layer-size policy.
const FlushThresholdBytes = 32 * 1024

// Index is the access method's handle on one BM25 index: its block
// relation, metadata directory and schema.
type Index struct {
	BaseDir string
	Schema  *segment.Schema
	Options *config.IndexOptions

	mgr *block.Manager
	dir *catalog.Directory
	log *zap.SugaredLogger

	mu       sync.Mutex
	builders map[uint64]*Builder // keyed by writer transaction id
}

// SetLogger wires the index's writer/vacuum logging; a nop logger is
// used until then.
func (idx *Index) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		idx.log = l
	}
}

// Header is the on-disk pointer set an opened index must remember across
// process restarts: the catalog's header. The block relation's path is
// not stored here; Build and Open derive it from baseDir.
type Header struct {
	CatalogHeader catalog.Header
}

// Build creates a brand-new index: a fresh block relation, an empty
// metadata directory, and (if initialDocs is non-empty) one initial
// segment built from the supplied rows.
func Build(baseDir string, opts *config.IndexOptions, initialDocs []segment.Document) (*Index, Header, error) {
	if err := opts.Validate(); err != nil {
		return nil, Header{}, err
	}

	mgr, err := block.Open(block.Config{Path: filepath.Join(baseDir, "catalog.db")})
	if err != nil {
		return nil, Header{}, err
	}

	dir, hdr, err := catalog.Create(mgr, baseDir, opts.LayerSizes, opts.BackgroundLayerSizes)
	if err != nil {
		mgr.Close()
		return nil, Header{}, err
	}

	idx := &Index{
		BaseDir:  baseDir,
		Schema:   segment.NewSchema(opts),
		Options:  opts,
		mgr:      mgr,
		dir:      dir,
		log:      obs.Nop(),
		builders: make(map[uint64]*Builder),
	}

	if len(initialDocs) > 0 {
		if err := idx.flushDocs(1, initialDocs); err != nil {
			return nil, Header{}, err
		}
	}

	result := Header{CatalogHeader: hdr}
	if err := WriteHeader(baseDir, result); err != nil {
		return nil, Header{}, err
	}
	if err := opts.WriteYAML(filepath.Join(baseDir, "options.yaml")); err != nil {
		return nil, Header{}, err
	}
	return idx, result, nil
}

// HeaderPath is the sidecar file an index's catalog header round-trips
// through across process restarts: the header is the bootstrap pointer
// into the block relation, and has to live somewhere reachable before
// the relation itself can be opened.
func HeaderPath(baseDir string) string {
	return filepath.Join(baseDir, "HEADER.yaml")
}

// WriteHeader persists hdr so a later process can call Open on baseDir.
func WriteHeader(baseDir string, hdr Header) error {
	data, err := yaml.Marshal(hdr)
	if err != nil {
		return errs.Storage(errs.CodeStorageIO, "failed to marshal index header", err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return errs.Storage(errs.CodeStorageIO, "failed to create index directory", err)
	}
	return os.WriteFile(HeaderPath(baseDir), data, 0o644)
}

// ReadHeader loads a previously persisted header.
func ReadHeader(baseDir string) (Header, error) {
	data, err := os.ReadFile(HeaderPath(baseDir))
	if err != nil {
		return Header{}, errs.Storage(errs.CodeStorageIO, "failed to read index header", err).
			WithDetail("path", HeaderPath(baseDir))
	}
	var hdr Header
	if err := yaml.Unmarshal(data, &hdr); err != nil {
		return Header{}, errs.Storage(errs.CodeStorageMetadataCorrupt, "failed to parse index header", err)
	}
	return hdr, nil
}

// Open attaches to an existing index given its persisted header.
func Open(baseDir string, opts *config.IndexOptions, hdr Header) (*Index, error) {
	mgr, err := block.Open(block.Config{Path: filepath.Join(baseDir, "catalog.db")})
	if err != nil {
		return nil, err
	}
	dir, err := catalog.Open(mgr, baseDir, hdr.CatalogHeader, opts.LayerSizes, opts.BackgroundLayerSizes)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return &Index{
		BaseDir:  baseDir,
		Schema:   segment.NewSchema(opts),
		Options:  opts,
		mgr:      mgr,
		dir:      dir,
		log:      obs.Nop(),
		builders: make(map[uint64]*Builder),
	}, nil
}

func (idx *Index) Close() error {
	if err := idx.dir.Close(); err != nil {
		return err
	}
	return idx.mgr.Close()
}

func (idx *Index) Directory() *catalog.Directory { return idx.dir }

// Insert batches one row into the caller's transaction builder; once
// the builder's estimated size reaches the flush threshold it is
// flushed as a new immutable segment. Multiple backends may call Insert
// concurrently under
// distinct xids without interfering — each gets its own Builder.
func (idx *Index) Insert(xid uint64, doc segment.Document) error {
	idx.mu.Lock()
	b, ok := idx.builders[xid]
	if !ok {
		b = NewBuilder(xid)
		idx.builders[xid] = b
	}
	idx.mu.Unlock()

	b.Add(doc)
	if b.EstimatedSize() < FlushThresholdBytes {
		return nil
	}
	return idx.Flush(xid)
}

// Flush forces the xid's pending builder to flush as a new segment now,
// regardless of size — used at commit time and by tests.
func (idx *Index) Flush(xid uint64) error {
	idx.mu.Lock()
	b, ok := idx.builders[xid]
	if ok {
		delete(idx.builders, xid)
	}
	idx.mu.Unlock()
	if !ok || len(b.Docs()) == 0 {
		return nil
	}
	return idx.flushDocs(xid, b.Docs())
}

// Abort discards xid's pending builder and marks any segment already
// flushed under this xid with Xmax = xid. GC later reclaims its pages.
func (idx *Index) Abort(xid uint64) error {
	idx.mu.Lock()
	delete(idx.builders, xid)
	idx.mu.Unlock()

	entries, err := idx.dir.SegmentMetas()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Meta.Xmin == xid && e.Meta.XmaxTxn == 0 {
			if err := idx.dir.MarkXmax(e.Handle, e.Meta, xid); err != nil {
				return err
			}
			idx.log.Debugw("marked aborted segment",
				"segment", e.Meta.SegmentID.String(),
				"xid", xid)
		}
	}
	return nil
}

func (idx *Index) flushDocs(xid uint64, docs []segment.Document) error {
	id := catalog.NewSegmentID()
	dir := segment.NewSegmentDir(idx.BaseDir, id)

	h, err := segment.Build(dir, idx.Schema, docs)
	if err != nil {
		return err
	}

	meta := catalog.SegmentMetaEntry{
		SegmentID:  id,
		Xmin:       xid,
		ByteSize:   h.ByteSize,
		NumDocs:    h.NumDocs,
		Components: h.Components,
	}
	if _, err := idx.dir.AppendSegment(meta); err != nil {
		return err
	}
	idx.log.Debugw("flushed segment",
		"segment", id.String(),
		"xid", xid,
		"docs", len(docs),
		"bytes", h.ByteSize)
	return nil
}

// BulkDelete implements vacuum's delete side: queues
// every segment named by affected for delete-bitset rewrite. The actual
// rewrite happens in VacuumCleanup, processed outside the merge lock.
func (idx *Index) BulkDelete(xid uint64, affected []catalog.SegmentID) error {
	for _, id := range affected {
		if _, err := idx.dir.QueueVacuum(catalog.VacuumEntry{SegmentID: id, QueuedXid: xid}); err != nil {
			return err
		}
	}
	return nil
}

// VacuumCleanup drains the vacuum-candidate list, rewriting each queued
// segment's delete bitset and removing its vacuum entry. Segment entries
// recyclable under horizon are not removed: this method deletes no
// segment entry and no segment files.
func (idx *Index) VacuumCleanup(horizon uint64, isDeleted func(segmentID catalog.SegmentID, docKey string) bool) error {
	pending, err := idx.dir.VacuumEntries()
	if err != nil {
		return err
	}
	entries, err := idx.dir.SegmentMetas()
	if err != nil {
		return err
	}
	index := catalog.BuildSegmentIndex(entries)

	for _, ve := range pending {
		e, ok := index.Get(ve.SegmentID)
		if !ok {
			continue
		}
		if err := idx.rewriteDeleteBitset(e, isDeleted); err != nil {
			return err
		}
		if err := idx.dir.CompleteVacuum(ve.SegmentID); err != nil {
			return err
		}
		idx.log.Debugw("rewrote delete bitset", "segment", ve.SegmentID.String())
	}

	for _, e := range entries {
		if catalog.Recyclable(e.Meta, horizon) {
			// Recyclable segments are left as they are: their catalog
			// entry stays in the segment list (SegmentMetaEntry.Xmax()
			// reports 0, so pagelist.GarbageCollect never removes it)
			// and their files stay on disk.
			_ = e
		}
	}
	return nil
}

func (idx *Index) rewriteDeleteBitset(e catalog.SegmentEntry, isDeleted func(segmentID catalog.SegmentID, docKey string) bool) error {
	r, err := segment.Open(segment.NewSegmentDir(idx.BaseDir, e.Meta.SegmentID))
	if err != nil {
		return err
	}
	defer r.Close()

	count, _ := r.DocCount()
	bitset := segment.NewDeleteBitset(int(count))
	// A real engine addresses documents by segment-local ordinal;
	// this approximation enumerates stored doc keys via a
	// match-all scan since bleve does not expose bare ordinals
	// through its public API (see DESIGN.md).
	if isDeleted != nil && count > 0 {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
		result, err := r.Search(req)
		if err == nil {
			for ordinal, hit := range result.Hits {
				if isDeleted(e.Meta.SegmentID, hit.ID) {
					bitset.MarkDeleted(ordinal)
				}
			}
		}
	}

	if err := segment.WriteDeleteBitset(segment.NewSegmentDir(idx.BaseDir, e.Meta.SegmentID), bitset); err != nil {
		return err
	}

	e.Meta.NumDeleted = uint64(bitset.NumDeleted())
	e.Meta.Components.Deletes = uint64(len(bitset.Marshal()))
	return idx.dir.MarkXmax(e.Handle, e.Meta, e.Meta.XmaxTxn)
}

// Validate performs amcheck-style validation:
// every segment directory must still open and report a consistent
// document count.
func (idx *Index) Validate() error {
	entries, err := idx.dir.SegmentMetas()
	if err != nil {
		return err
	}
	for _, e := range entries {
		r, err := segment.Open(segment.NewSegmentDir(idx.BaseDir, e.Meta.SegmentID))
		if err != nil {
			return errs.Storage(errs.CodeStorageChecksumFailed, "segment failed to open during validation", err).
				WithDetail("segment", e.Meta.SegmentID.String())
		}
		count, err := r.DocCount()
		_ = r.Close()
		if err != nil {
			return errs.Storage(errs.CodeStorageChecksumFailed, "segment doc count unreadable", err).
				WithDetail("segment", e.Meta.SegmentID.String())
		}
		// Deleted documents are masked by the bitset, never removed from
		// the segment files, so the engine's count must match NumDocs
		// exactly.
		if count != e.Meta.NumDocs {
			return errs.Storage(errs.CodeStorageMetadataCorrupt, "segment doc count disagrees with metadata", nil).
				WithDetail("segment", e.Meta.SegmentID.String())
		}
	}
	return nil
}
