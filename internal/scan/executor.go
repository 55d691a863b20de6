package scan

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// DocsPerCancellationCheck is how often a worker polls for cancellation
// while draining a single segment.
const DocsPerCancellationCheck = 10_000

// SegmentQueue is the shared mutable scan state: a mutex-guarded
// segment-id queue workers pop from lazily. A host with OS-process
// workers would put this in a fixed-layout shared-memory struct behind
// a spinlock; with every worker in one address space an ordinary
// sync.Mutex suffices.
type SegmentQueue struct {
	mu    sync.Mutex
	items []catalog.SegmentID
	next  int
}

// NewSegmentQueue seeds the queue with the segment ids this scan's
// directory selected.
func NewSegmentQueue(ids []catalog.SegmentID) *SegmentQueue {
	return &SegmentQueue{items: ids}
}

// Pop returns the next unclaimed segment id, or ok=false once exhausted.
// Workers are expected to call this lazily — "important because worker
// startup is not simultaneous".
func (q *SegmentQueue) Pop() (catalog.SegmentID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.items) {
		return catalog.SegmentID{}, false
	}
	id := q.items[q.next]
	q.next++
	return id, true
}

// Executor runs an initialized Plan against a SearchReader, in parallel
// across segments, with cooperative cancellation.
type Executor struct {
	Reader     *segment.SearchReader
	Plan       *Plan
	Compiled   segment.Query
	NumWorkers int
	// Cancelled is polled between segments and every
	// DocsPerCancellationCheck documents within a segment; a true return
	// propagates as errs.Cancellation.
	Cancelled func() bool
}

// Release is returned by Initialize and must be called (even on error)
// to drop the cleanup-lock pin taken for this scan's lifetime.
type Release func() error

// Initialize opens the cleanup-lock pin for this scan's lifetime. The
// directory's segment selection itself happens in the mvcc package
// before this call; Initialize only takes ownership of the pin.
func Initialize(takeCleanupPin func() (func() error, error)) (Release, error) {
	release, err := takeCleanupPin()
	if err != nil {
		return nil, err
	}
	return Release(release), nil
}

// Execute dispatches to the mode-appropriate execution path chosen by
// Finalize.
func (e *Executor) Execute(ctx context.Context, ids []catalog.SegmentID) ([]segment.Hit, error) {
	switch e.Plan.Mode {
	case ModeTopN:
		return e.executeTopN(ctx, ids)
	case ModeCountOnly:
		n, err := e.executeCount(ctx, ids)
		if err != nil {
			return nil, err
		}
		return []segment.Hit{{Fields: map[string]any{"count": n}}}, nil
	case ModeAggregation:
		partials, err := e.ExecuteAggregates(ctx, ids)
		if err != nil {
			return nil, err
		}
		return []segment.Hit{{Fields: map[string]any{"aggregates": partials}}}, nil
	default:
		return e.executeUnordered(ctx, ids)
	}
}

// executeUnordered covers ModeNormal and the three fast-field modes:
// workers pop a segment id, drain its matches into the projected tuple,
// emit rows; after a segment is exhausted, pop the next.
func (e *Executor) executeUnordered(ctx context.Context, ids []catalog.SegmentID) ([]segment.Hit, error) {
	queue := NewSegmentQueue(ids)
	workers := e.NumWorkers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var out []segment.Hit

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return errs.Cancellation(gctx.Err())
				}
				if e.Cancelled != nil && e.Cancelled() {
					return errs.Cancellation(nil)
				}
				id, ok := queue.Pop()
				if !ok {
					return nil
				}
				hits, err := e.Reader.Search([]catalog.SegmentID{id}, e.Compiled)
				if err != nil {
					return err
				}
				for start := 0; start < len(hits); start += DocsPerCancellationCheck {
					if e.Cancelled != nil && e.Cancelled() {
						return errs.Cancellation(nil)
					}
					end := start + DocsPerCancellationCheck
					if end > len(hits) {
						end = len(hits)
					}
					chunk := projectFields(hits[start:end], e.Plan.Projected, e.Plan.NeedScores)
					mu.Lock()
					out = append(out, chunk...)
					mu.Unlock()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// executeTopN splits segments across workers and merges partial top-N
// results with segment.SearchTopNInSegments's own comparator, so the
// final order is stable for any worker count.
func (e *Executor) executeTopN(ctx context.Context, ids []catalog.SegmentID) ([]segment.Hit, error) {
	workers := e.NumWorkers
	if workers < 1 || workers > len(ids) {
		workers = max1(len(ids))
	}
	buckets := splitSegments(ids, workers)

	n := e.Plan.Limit
	if !e.Plan.HasLimit || n < 0 {
		n = -1
	}

	var mu sync.Mutex
	var merged []segment.Hit

	g, gctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		bucket := bucket
		if len(bucket) == 0 {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return errs.Cancellation(gctx.Err())
			}
			fetch := n
			if fetch >= 0 {
				fetch += e.Plan.Offset
			}
			hits, err := e.Reader.SearchTopNInSegments(bucket, e.Compiled, e.Plan.OrderBy, e.Plan.Directions, fetch, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			merged = append(merged, hits...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged = mergeTopN(merged, e.Plan.OrderBy, e.Plan.Directions, n, e.Plan.Offset)
	return projectFields(merged, e.Plan.Projected, e.Plan.NeedScores), nil
}

// mergeTopN applies the same ordering comparator segment.SearchReader
// uses internally, so the final cross-worker merge is stable regardless
// of how many workers ran.
func mergeTopN(hits []segment.Hit, orderBy []segment.OrderByFeature, dirs []segment.SortDirection, n, offset int) []segment.Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		for k, f := range orderBy {
			desc := len(dirs) > k && dirs[k].Descending
			var a, b any
			switch f.Kind {
			case segment.FeatureScore:
				a, b = hits[i].Score, hits[j].Score
			default:
				a, b = hits[i].Fields[f.Field], hits[j].Fields[f.Field]
			}
			cmp := segment.CompareFieldValues(a, b)
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if hits[i].SegmentID != hits[j].SegmentID {
			return hits[i].SegmentID.String() < hits[j].SegmentID.String()
		}
		return hits[i].DocID < hits[j].DocID
	})
	if offset > len(hits) {
		return nil
	}
	hits = hits[offset:]
	if n >= 0 && n < len(hits) {
		hits = hits[:n]
	}
	return hits
}

// executeCount answers a bare count(*): the real MVCC-filtered match
// count, with segment selection already applied by the caller.
func (e *Executor) executeCount(ctx context.Context, ids []catalog.SegmentID) (int, error) {
	hits, err := e.Reader.Search(ids, e.Compiled)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// ExecuteAggregates implements the aggregation pass-through mode:
// workers pop segment ids and compute per-segment partial buckets, which
// are merged with segment.MergePartials — associative and commutative,
// so the final buckets are independent of worker count and pop order.
func (e *Executor) ExecuteAggregates(ctx context.Context, ids []catalog.SegmentID) ([]segment.Partial, error) {
	queue := NewSegmentQueue(ids)
	workers := e.NumWorkers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var merged []segment.Partial

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return errs.Cancellation(gctx.Err())
				}
				if e.Cancelled != nil && e.Cancelled() {
					return errs.Cancellation(nil)
				}
				id, ok := queue.Pop()
				if !ok {
					return nil
				}
				partials, err := e.Reader.AggregateInSegments([]catalog.SegmentID{id}, e.Compiled, e.Plan.Aggregates)
				if err != nil {
					return err
				}
				mu.Lock()
				merged = segment.MergePartials(merged, partials)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if merged == nil {
		merged = make([]segment.Partial, len(e.Plan.Aggregates))
	}
	return merged, nil
}

func projectFields(hits []segment.Hit, projected []string, needScores bool) []segment.Hit {
	if len(projected) == 0 {
		return hits
	}
	out := make([]segment.Hit, len(hits))
	for i, h := range hits {
		trimmed := make(map[string]any, len(projected)+1)
		for _, f := range projected {
			if v, ok := h.Fields[f]; ok {
				trimmed[f] = v
			}
		}
		if needScores {
			trimmed["_score"] = h.Score
		}
		out[i] = segment.Hit{SegmentID: h.SegmentID, DocID: h.DocID, Score: h.Score, Fields: trimmed}
	}
	return out
}

func splitSegments(ids []catalog.SegmentID, workers int) [][]catalog.SegmentID {
	buckets := make([][]catalog.SegmentID, workers)
	for i, id := range ids {
		buckets[i%workers] = append(buckets[i%workers], id)
	}
	return buckets
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
