package am

import "github.com/paradex-labs/bm25index/internal/segment"

// Builder is the in-memory accumulator for one writer transaction:
// documents staged until the estimated size crosses the flush
// threshold (or the transaction commits), at which point Index.Flush
// turns it into a new immutable segment.
type Builder struct {
	xid      uint64
	docs     []segment.Document
	estBytes int
}

func NewBuilder(xid uint64) *Builder {
	return &Builder{xid: xid}
}

// Add stages one document, tracking a rough byte-size estimate used to
// decide when to flush.
func (b *Builder) Add(doc segment.Document) {
	b.docs = append(b.docs, doc)
	b.estBytes += estimateSize(doc)
}

func (b *Builder) Docs() []segment.Document { return b.docs }
func (b *Builder) EstimatedSize() int       { return b.estBytes }
func (b *Builder) Xid() uint64              { return b.xid }

func estimateSize(doc segment.Document) int {
	size := len(doc.Key)
	for k, v := range doc.Fields {
		size += len(k) + 16
		if s, ok := v.(string); ok {
			size += len(s)
		}
	}
	return size
}
