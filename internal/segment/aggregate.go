package segment

import (
	"github.com/blevesearch/bleve/v2"

	"github.com/paradex-labs/bm25index/internal/catalog"
	"github.com/paradex-labs/bm25index/internal/errs"
)

// AggKind enumerates the aggregate shapes the distributed collector
// computes per segment, as partial buckets the host merges.
type AggKind int

const (
	AggCount AggKind = iota
	AggSum
	AggMin
	AggMax
	AggTerms
)

// AggregateSpec names one aggregate over a fast field. AggCount ignores
// Field; AggTerms buckets string values, the numeric kinds fold float64
// fast-field values.
type AggregateSpec struct {
	Kind  AggKind
	Field string
}

// Partial is one aggregate's per-segment partial state, mergeable across
// segments (and across workers) without re-reading any document.
type Partial struct {
	Count     int64
	Sum       float64
	Min       float64
	Max       float64
	HasMinMax bool
	Terms     map[string]int64
}

// AggregateInSegments computes one Partial per spec across the given
// segments' alive matches of q. Invisible rows are dropped before they
// reach any bucket.
func (r *SearchReader) AggregateInSegments(ids []catalog.SegmentID, q Query, specs []AggregateSpec) ([]Partial, error) {
	partials := make([]Partial, len(specs))
	for i, s := range specs {
		if s.Kind == AggTerms {
			partials[i].Terms = make(map[string]int64)
		}
	}

	for _, h := range r.resolve(ids) {
		req := bleve.NewSearchRequestOptions(q, unboundedSize(h), 0, false)
		req.Fields = []string{"*"}
		result, err := h.Index.Search(req)
		if err != nil {
			return nil, errs.Query(errs.CodeQueryUnparseable, "segment aggregation failed", err)
		}
		for _, hit := range result.Hits {
			if !aliveOK(h, hit.ID) {
				continue
			}
			for i, s := range specs {
				foldHit(&partials[i], s, hit.Fields)
			}
		}
	}
	return partials, nil
}

func foldHit(p *Partial, s AggregateSpec, fields map[string]any) {
	if s.Kind == AggCount {
		p.Count++
		return
	}
	v, ok := fields[s.Field]
	if !ok || v == nil {
		return
	}
	switch s.Kind {
	case AggTerms:
		if sv, ok := v.(string); ok {
			p.Terms[sv]++
			p.Count++
		}
	default:
		fv, ok := v.(float64)
		if !ok {
			return
		}
		p.Count++
		p.Sum += fv
		if !p.HasMinMax {
			p.Min, p.Max, p.HasMinMax = fv, fv, true
			return
		}
		if fv < p.Min {
			p.Min = fv
		}
		if fv > p.Max {
			p.Max = fv
		}
	}
}

// MergePartials folds b into a, position by position; the two slices
// must come from the same spec list. The merge is associative and
// commutative, so the host can combine worker results in any order and
// still land on the same buckets, independent of parallelism degree.
func MergePartials(a, b []Partial) []Partial {
	if a == nil {
		return b
	}
	for i := range a {
		if i >= len(b) {
			break
		}
		a[i].Count += b[i].Count
		a[i].Sum += b[i].Sum
		switch {
		case !a[i].HasMinMax:
			a[i].Min, a[i].Max, a[i].HasMinMax = b[i].Min, b[i].Max, b[i].HasMinMax
		case b[i].HasMinMax:
			if b[i].Min < a[i].Min {
				a[i].Min = b[i].Min
			}
			if b[i].Max > a[i].Max {
				a[i].Max = b[i].Max
			}
		}
		for term, n := range b[i].Terms {
			if a[i].Terms == nil {
				a[i].Terms = make(map[string]int64)
			}
			a[i].Terms[term] += n
		}
	}
	return a
}
