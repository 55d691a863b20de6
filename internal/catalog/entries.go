package catalog

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// SegmentID is a segment's short UUID, used both as its display identifier
// and as the name of the directory the search segment engine
// keeps its own component files under.
type SegmentID [16]byte

func NewSegmentID() SegmentID {
	u := uuid.New()
	var id SegmentID
	copy(id[:], u[:])
	return id
}

func (s SegmentID) String() string {
	return uuid.UUID(s).String()
}

// ComponentSizes is the per-stream byte size breakdown every
// SegmentMetaEntry carries: terms, postings, positions, fast-fields,
// norms, stored docs, deletes.
type ComponentSizes struct {
	Terms      uint64
	Postings   uint64
	Positions  uint64
	FastFields uint64
	Norms      uint64
	StoredDocs uint64
	Deletes    uint64
}

func (c ComponentSizes) Total() uint64 {
	return c.Terms + c.Postings + c.Positions + c.FastFields + c.Norms + c.StoredDocs + c.Deletes
}

// SegmentMetaEntry is the on-page record for one segment: append-only
// except for Xmax and the delete-bitset size, which vacuum rewrites.
type SegmentMetaEntry struct {
	SegmentID  SegmentID
	Xmin       uint64
	XmaxTxn    uint64 // 0 == Invalid: not yet deleted/merged away
	ByteSize   uint64
	NumDocs    uint64
	NumDeleted uint64
	Components ComponentSizes
}

const segmentMetaEntrySize = 16 + 8 + 8 + 8 + 8 + 8 + 8*7 // 112 bytes

func (e *SegmentMetaEntry) Size() int { return segmentMetaEntrySize }

// Xmax implements pagelist.Item. The segment list is never garbage
// collected through the generic horizon sweep — recyclability also
// depends on cluster-wide snapshot advancement, which Directory.Recyclable
// checks explicitly — so this always reports 0 to pagelist.GarbageCollect.
func (e *SegmentMetaEntry) Xmax() uint64 { return 0 }

func (e *SegmentMetaEntry) Marshal(buf []byte) {
	off := 0
	copy(buf[off:off+16], e.SegmentID[:])
	off += 16
	binary.LittleEndian.PutUint64(buf[off:], e.Xmin)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.XmaxTxn)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.ByteSize)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.NumDocs)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.NumDeleted)
	off += 8
	for _, v := range []uint64{
		e.Components.Terms, e.Components.Postings, e.Components.Positions,
		e.Components.FastFields, e.Components.Norms, e.Components.StoredDocs, e.Components.Deletes,
	} {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}
}

func (e *SegmentMetaEntry) Unmarshal(buf []byte) {
	off := 0
	copy(e.SegmentID[:], buf[off:off+16])
	off += 16
	e.Xmin = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.XmaxTxn = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.ByteSize = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.NumDocs = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.NumDeleted = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	vals := make([]uint64, 7)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}
	e.Components = ComponentSizes{
		Terms: vals[0], Postings: vals[1], Positions: vals[2],
		FastFields: vals[3], Norms: vals[4], StoredDocs: vals[5], Deletes: vals[6],
	}
}

// MaxMergeSegments bounds how many segment ids a single MergeEntry can
// name; merges wider than this are split into multiple rounds.
const MaxMergeSegments = 8

// MergeEntry records an in-progress merge: the merging process, its
// transaction id, and the consumed segment ids.
type MergeEntry struct {
	PID         uint64
	Xmin        uint64
	NumSegments uint32
	SegmentIDs  [MaxMergeSegments]SegmentID
}

const mergeEntrySize = 8 + 8 + 4 + MaxMergeSegments*16

func (e *MergeEntry) Size() int    { return mergeEntrySize }
func (e *MergeEntry) Xmax() uint64 { return 0 }

func (e *MergeEntry) Marshal(buf []byte) {
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], e.PID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], e.Xmin)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], e.NumSegments)
	off += 4
	for i := 0; i < MaxMergeSegments; i++ {
		copy(buf[off:off+16], e.SegmentIDs[i][:])
		off += 16
	}
}

func (e *MergeEntry) Unmarshal(buf []byte) {
	off := 0
	e.PID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.Xmin = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	e.NumSegments = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	for i := 0; i < MaxMergeSegments; i++ {
		copy(e.SegmentIDs[i][:], buf[off:off+16])
		off += 16
	}
}

// VacuumEntry queues a segment for delete-bitset rewrite,
// removed once the rewrite completes.
type VacuumEntry struct {
	SegmentID SegmentID
	QueuedXid uint64
}

const vacuumEntrySize = 16 + 8

func (e *VacuumEntry) Size() int    { return vacuumEntrySize }
func (e *VacuumEntry) Xmax() uint64 { return 0 }

func (e *VacuumEntry) Marshal(buf []byte) {
	copy(buf[0:16], e.SegmentID[:])
	binary.LittleEndian.PutUint64(buf[16:24], e.QueuedXid)
}

func (e *VacuumEntry) Unmarshal(buf []byte) {
	copy(e.SegmentID[:], buf[0:16])
	e.QueuedXid = binary.LittleEndian.Uint64(buf[16:24])
}
