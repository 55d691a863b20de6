package am

import (
	"hash/fnv"

	"github.com/blevesearch/bleve/v2"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// HeapKeySource is the host-side oracle Verify consults: whether a row
// key still exists in the heap relation the index was built over.
type HeapKeySource interface {
	Contains(key string) bool
	// Keys enumerates every live heap key, needed only for the
	// heap-all-indexed direction of the check.
	Keys() ([]string, error)
}

// VerifyOptions carries the knobs of the verify_bm25_index admin
// function: an optional heap-side completeness check, a sample
// rate, and a segment-id subset that makes a long verification resumable.
type VerifyOptions struct {
	// HeapAllIndexed additionally checks that every heap key appears in
	// some visible segment. Only meaningful when SegmentIDs is empty —
	// a subset verification cannot prove a key is missing from segments
	// it never opened.
	HeapAllIndexed bool
	// SampleRate in (0, 1) checks a deterministic hash-selected subset
	// of each segment's documents; 0 or >= 1 checks every document.
	// Sampling is keyed on the document key, so re-running with the
	// same rate re-checks the same rows.
	SampleRate float64
	// SegmentIDs restricts the check to the named segments; empty means
	// every segment in the catalog.
	SegmentIDs []catalog.SegmentID
}

// VerifyReport is what Verify hands back: how much was covered and which
// keys failed in either direction.
type VerifyReport struct {
	SegmentsChecked int
	DocsChecked     int
	DocsSampledOut  int
	// MissingFromHeap lists indexed keys the heap no longer contains.
	MissingFromHeap []string
	// MissingFromIndex lists heap keys no checked segment contains
	// (populated only under HeapAllIndexed).
	MissingFromIndex []string
}

func (r *VerifyReport) OK() bool {
	return len(r.MissingFromHeap) == 0 && len(r.MissingFromIndex) == 0
}

// sampled reports whether key falls inside the deterministic sample for
// rate, via an FNV-1a hash bucketed into ten-thousandths. Hash-based
// selection keeps a re-run (or a resumed run over the remaining segment
// subset) checking the same rows instead of a fresh random draw.
func sampled(key string, rate float64) bool {
	if rate <= 0 || rate >= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()%10000 < uint32(rate*10000)
}

// Verify implements the verify_bm25_index admin function:
// every indexed document key must still exist in the heap, optionally
// sampled, optionally restricted to a segment subset, optionally
// cross-checked in the heap-to-index direction.
func (idx *Index) Verify(opts VerifyOptions, heap HeapKeySource) (*VerifyReport, error) {
	entries, err := idx.dir.SegmentMetas()
	if err != nil {
		return nil, err
	}

	var subset map[catalog.SegmentID]bool
	if len(opts.SegmentIDs) > 0 {
		subset = make(map[catalog.SegmentID]bool, len(opts.SegmentIDs))
		for _, id := range opts.SegmentIDs {
			subset[id] = true
		}
	}

	report := &VerifyReport{}
	indexedKeys := make(map[string]bool)

	for _, e := range entries {
		if e.Meta.XmaxTxn != 0 {
			continue
		}
		if subset != nil && !subset[e.Meta.SegmentID] {
			continue
		}

		r, err := segment.Open(segment.NewSegmentDir(idx.BaseDir, e.Meta.SegmentID))
		if err != nil {
			return nil, errs.Storage(errs.CodeStorageChecksumFailed, "segment failed to open during verification", err).
				WithDetail("segment", e.Meta.SegmentID.String())
		}
		keys, err := segmentDocKeys(r)
		_ = r.Close()
		if err != nil {
			return nil, err
		}

		report.SegmentsChecked++
		for _, key := range keys {
			if opts.HeapAllIndexed {
				indexedKeys[key] = true
			}
			if !sampled(key, opts.SampleRate) {
				report.DocsSampledOut++
				continue
			}
			report.DocsChecked++
			if !heap.Contains(key) {
				report.MissingFromHeap = append(report.MissingFromHeap, key)
			}
		}
	}

	if opts.HeapAllIndexed && subset == nil {
		heapKeys, err := heap.Keys()
		if err != nil {
			return nil, err
		}
		for _, key := range heapKeys {
			if !indexedKeys[key] {
				report.MissingFromIndex = append(report.MissingFromIndex, key)
			}
		}
	}

	return report, nil
}

// segmentDocKeys enumerates a segment's document keys through a
// match-all scan, the same ordinal-free enumeration rewriteDeleteBitset
// uses (see DESIGN.md on bleve's public-surface constraints).
func segmentDocKeys(r bleve.Index) ([]string, error) {
	count, err := r.DocCount()
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "segment doc count unreadable", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	result, err := r.Search(req)
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "segment enumeration failed", err)
	}
	keys := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		keys = append(keys, hit.ID)
	}
	return keys, nil
}
