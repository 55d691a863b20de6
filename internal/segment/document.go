// Package segment treats the search library (bleve/v2) as a black box:
// a build(docs)/open(files)/merge(readers)/weight(query) surface and
// nothing more of its internals is exposed outward. Every segment is a
// bleve index rooted at its own directory named after the segment's
// short UUID; SegmentMetaEntry's component sizes are derived from the
// directory's on-disk footprint rather than re-streaming bleve's bytes.
package segment

import (
	"os"
	"path/filepath"

	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// Query is the engine's native query-tree interface, the one type of the
// search library's that crosses this package's boundary outward: the
// query package compiles into it, the scan executor carries it opaquely.
type Query = bquery.Query

// Document is one row handed to a builder: the key field value plus the
// rest of the row's field values, keyed by field name. Values are already
// host-decoded Go types (string, int64, float64, bool, time.Time); the
// datum<->binary codec itself lives in the host.
type Document struct {
	Key    string
	Fields map[string]any
}

// DeleteBitset is the mutable per-segment alive mask: bit i set means
// doc ordinal i has been deleted. Segments are immutable except for this
// bitset, which vacuum rewrites.
type DeleteBitset struct {
	bits []uint64
	n    int
}

func NewDeleteBitset(numDocs int) *DeleteBitset {
	return &DeleteBitset{bits: make([]uint64, (numDocs+63)/64), n: numDocs}
}

func (d *DeleteBitset) MarkDeleted(docID int) {
	if docID < 0 || docID >= d.n {
		return
	}
	d.bits[docID/64] |= 1 << uint(docID%64)
}

func (d *DeleteBitset) IsDeleted(docID int) bool {
	if docID < 0 || docID >= d.n {
		return true
	}
	return d.bits[docID/64]&(1<<uint(docID%64)) != 0
}

func (d *DeleteBitset) NumDeleted() int {
	count := 0
	for _, w := range d.bits {
		for w != 0 {
			count += int(w & 1)
			w >>= 1
		}
	}
	return count
}

func (d *DeleteBitset) Marshal() []byte {
	buf := make([]byte, len(d.bits)*8)
	for i, w := range d.bits {
		for b := 0; b < 8; b++ {
			buf[i*8+b] = byte(w >> (8 * b))
		}
	}
	return buf
}

func UnmarshalDeleteBitset(numDocs int, buf []byte) *DeleteBitset {
	d := NewDeleteBitset(numDocs)
	for i := range d.bits {
		if i*8+8 > len(buf) {
			break
		}
		var w uint64
		for b := 0; b < 8; b++ {
			w |= uint64(buf[i*8+b]) << (8 * b)
		}
		d.bits[i] = w
	}
	return d
}

// deleteBitsetName is the one mutable file in a segment directory;
// vacuum rewrites it atomically via rename.
const deleteBitsetName = "deletes.bin"

// WriteDeleteBitset atomically replaces dir's delete bitset file.
func WriteDeleteBitset(dir string, d *DeleteBitset) error {
	tmp := filepath.Join(dir, deleteBitsetName+".tmp")
	if err := os.WriteFile(tmp, d.Marshal(), 0o644); err != nil {
		return errs.Storage(errs.CodeStorageIO, "failed to stage delete bitset", err).WithDetail("dir", dir)
	}
	if err := os.Rename(tmp, filepath.Join(dir, deleteBitsetName)); err != nil {
		return errs.Storage(errs.CodeStorageIO, "failed to install delete bitset", err).WithDetail("dir", dir)
	}
	return nil
}

// ReadDeleteBitset loads dir's delete bitset; a segment vacuum has never
// touched has no bitset file, which reads as all-alive.
func ReadDeleteBitset(dir string, numDocs int) (*DeleteBitset, error) {
	buf, err := os.ReadFile(filepath.Join(dir, deleteBitsetName))
	if os.IsNotExist(err) {
		return NewDeleteBitset(numDocs), nil
	}
	if err != nil {
		return nil, errs.Storage(errs.CodeStorageIO, "failed to read delete bitset", err).WithDetail("dir", dir)
	}
	return UnmarshalDeleteBitset(numDocs, buf), nil
}
