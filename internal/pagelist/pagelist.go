// Package pagelist implements an append/scan linked list of fixed-size
// items spanning multiple pages, with garbage collection of
// entries whose deletion transaction has become visible to every snapshot.
package pagelist

import (
	"encoding/binary"

	"github.com/paradex-labs/bm25index/internal/block"
	"github.com/paradex-labs/bm25index/internal/errs"
)

// headerSize is the per-page bookkeeping: next_blockno (8 bytes) + count
// of used item slots (4 bytes), padded to 16 for alignment.
const headerSize = 16

// Item is anything the list can store: a fixed-size record plus the
// transaction horizon garbage_collect tests against.
type Item interface {
	// Marshal writes the item's fixed-size encoding into buf, which is
	// always exactly Size() bytes.
	Marshal(buf []byte)
	// Unmarshal reads the item back out of buf.
	Unmarshal(buf []byte)
	// Size is the item's fixed on-disk size in bytes.
	Size() int
	// Xmax is the deletion-transaction stamp used by garbage_collect; a
	// zero value means "not deleted".
	Xmax() uint64
}

// Handle identifies one item's on-page location, permitting in-place
// mutation of its fields via Update.
type Handle struct {
	Blockno block.Blockno
	Slot    int
}

// List is a linked list of fixed-size items rooted at a start block
// recorded on the owning header page at a well-known offset.
type List struct {
	mgr      *block.Manager
	startBn  block.Blockno
	itemSize int
	newItem  func() Item
}

// Open attaches to an existing list whose first page is startBn.
func Open(mgr *block.Manager, startBn block.Blockno, itemSize int, newItem func() Item) *List {
	return &List{mgr: mgr, startBn: startBn, itemSize: itemSize, newItem: newItem}
}

// Create allocates the list's first page and returns the new list plus
// the blockno callers should persist at their well-known header offset.
func Create(mgr *block.Manager, itemSize int, newItem func() Item) (*List, block.Blockno, error) {
	buf, err := mgr.AllocatePage()
	if err != nil {
		return nil, 0, err
	}
	bn := buf.Page().Blockno
	buf.LockExclusive()
	buf.Page().NextBlockno = block.InvalidBlockno
	setCount(buf.Page(), 0)
	buf.MarkDirty()
	buf.UnlockExclusive()
	if err := buf.Unpin(); err != nil {
		return nil, 0, err
	}
	return &List{mgr: mgr, startBn: bn, itemSize: itemSize, newItem: newItem}, bn, nil
}

func maxOffset(itemSize int) int {
	return (block.PageSize - headerSize) / itemSize
}

func itemOffset(slot, itemSize int) int {
	return headerSize + slot*itemSize
}

func getCount(p *block.Page) int {
	return int(binary.LittleEndian.Uint32(p.Data[8:12]))
}

func setCount(p *block.Page, n int) {
	binary.LittleEndian.PutUint32(p.Data[8:12], uint32(n))
}

// Append places item on the current tail page, allocating and linking a
// fresh page if the tail is full.
func (l *List) Append(item Item) (Handle, error) {
	bn := l.startBn
	for {
		buf, err := l.mgr.GetBuffer(bn)
		if err != nil {
			return Handle{}, err
		}
		buf.LockExclusive()
		count := getCount(buf.Page())
		full := count >= maxOffset(l.itemSize)
		next := buf.Page().NextBlockno

		if !full {
			off := itemOffset(count, l.itemSize)
			item.Marshal(buf.Page().Data[off : off+l.itemSize])
			setCount(buf.Page(), count+1)
			buf.MarkDirty()
			buf.UnlockExclusive()
			handle := Handle{Blockno: bn, Slot: count}
			if err := buf.Unpin(); err != nil {
				return Handle{}, err
			}
			return handle, nil
		}

		if next != block.InvalidBlockno {
			buf.UnlockExclusive()
			if err := buf.Unpin(); err != nil {
				return Handle{}, err
			}
			bn = next
			continue
		}

		// Tail page full and no successor: allocate one and link it.
		newBuf, err := l.mgr.AllocatePage()
		if err != nil {
			buf.UnlockExclusive()
			_ = buf.Unpin()
			return Handle{}, err
		}
		newBuf.LockExclusive()
		newBuf.Page().NextBlockno = block.InvalidBlockno
		setCount(newBuf.Page(), 0)

		buf.Page().NextBlockno = newBuf.Page().Blockno
		buf.MarkDirty()
		buf.UnlockExclusive()
		if err := buf.Unpin(); err != nil {
			newBuf.UnlockExclusive()
			_ = newBuf.Unpin()
			return Handle{}, err
		}

		off := itemOffset(0, l.itemSize)
		item.Marshal(newBuf.Page().Data[off : off+l.itemSize])
		setCount(newBuf.Page(), 1)
		newBuf.MarkDirty()
		newBuf.UnlockExclusive()
		handle := Handle{Blockno: newBuf.Page().Blockno, Slot: 0}
		if err := newBuf.Unpin(); err != nil {
			return Handle{}, err
		}
		return handle, nil
	}
}

// Entry pairs a deserialized item with the handle used to mutate it
// in place.
type Entry struct {
	Item   Item
	Handle Handle
}

// List yields every item in insertion order.
func (l *List) List() ([]Entry, error) {
	var out []Entry
	bn := l.startBn
	for bn != block.InvalidBlockno {
		buf, err := l.mgr.GetBuffer(bn)
		if err != nil {
			return nil, err
		}
		buf.LockShared()
		count := getCount(buf.Page())
		for slot := 0; slot < count; slot++ {
			off := itemOffset(slot, l.itemSize)
			item := l.newItem()
			item.Unmarshal(buf.Page().Data[off : off+l.itemSize])
			out = append(out, Entry{Item: item, Handle: Handle{Blockno: bn, Slot: slot}})
		}
		next := buf.Page().NextBlockno
		buf.UnlockShared()
		if err := buf.Unpin(); err != nil {
			return nil, err
		}
		bn = next
	}
	return out, nil
}

// Update overwrites the item at handle in place and marks the page dirty.
func (l *List) Update(h Handle, item Item) error {
	buf, err := l.mgr.GetBuffer(h.Blockno)
	if err != nil {
		return err
	}
	buf.LockExclusive()
	off := itemOffset(h.Slot, l.itemSize)
	item.Marshal(buf.Page().Data[off : off+l.itemSize])
	buf.MarkDirty()
	buf.UnlockExclusive()
	return buf.Unpin()
}

// GarbageCollect removes items whose Xmax is nonzero and below horizon,
// compacting each page's surviving items down toward slot 0 so later
// appends reuse the freed slots. Returns the number of items removed.
func (l *List) GarbageCollect(horizon uint64) (int, error) {
	removed := 0
	bn := l.startBn
	for bn != block.InvalidBlockno {
		buf, err := l.mgr.GetBuffer(bn)
		if err != nil {
			return removed, err
		}
		buf.LockExclusive()
		count := getCount(buf.Page())
		kept := 0
		for slot := 0; slot < count; slot++ {
			off := itemOffset(slot, l.itemSize)
			item := l.newItem()
			item.Unmarshal(buf.Page().Data[off : off+l.itemSize])
			if xmax := item.Xmax(); xmax != 0 && xmax < horizon {
				removed++
				continue
			}
			if kept != slot {
				keptOff := itemOffset(kept, l.itemSize)
				copy(buf.Page().Data[keptOff:keptOff+l.itemSize], buf.Page().Data[off:off+l.itemSize])
			}
			kept++
		}
		if kept != count {
			setCount(buf.Page(), kept)
			buf.MarkDirty()
		}
		next := buf.Page().NextBlockno
		buf.UnlockExclusive()
		if err := buf.Unpin(); err != nil {
			return removed, err
		}
		bn = next
	}
	return removed, nil
}

// StartBlockno is the list's first page, for persisting in a header.
func (l *List) StartBlockno() block.Blockno { return l.startBn }

// ErrItemTooLarge is returned by callers constructing a List whose item
// size cannot fit even one entry per page.
var ErrItemTooLarge = errs.Storage(errs.CodeStorageMetadataCorrupt, "item size exceeds page capacity", nil)
