// Package query implements the tagged-union query language: term,
// fuzzy term, phrase, phrase-prefix, range, regex, match
// (analyzer-driven), boolean combinator, exists, fielded wrapper,
// more-like-this and nested-path queries, compiled at plan time into
// the search engine's native query tree (bleve's Query interface).
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/paradex-labs/bm25index/internal/errs"
	"github.com/paradex-labs/bm25index/internal/segment"
)

// Kind tags which variant of the union a Query holds.
type Kind int

const (
	KindTerm Kind = iota
	KindFuzzyTerm
	KindPhrase
	KindPhrasePrefix
	KindRange
	KindRegex
	KindMatch
	KindBoolean
	KindExists
	KindFielded
	KindMoreLikeThis
	KindNested
)

// BooleanOp selects conjunction or disjunction for KindBoolean and for
// KindMatch's multi-term mode.
type BooleanOp int

const (
	OpAnd BooleanOp = iota
	OpOr
)

// Query is a tagged union. Only the fields relevant to Kind are
// populated; Compile dispatches one case per variant.
type Query struct {
	Kind  Kind
	Field string

	// KindTerm / KindFuzzyTerm
	Term                string
	FuzzyDistance       int
	FuzzyTranspositions bool

	// KindPhrase / KindPhrasePrefix
	Terms []string

	// KindRange
	LowerBound      any
	UpperBound      any
	LowerInclusive  bool
	UpperInclusive  bool
	IsDateTimeRange bool

	// KindRegex
	Pattern string

	// KindMatch
	MatchText string
	MatchOp   BooleanOp

	// KindBoolean
	Must    []*Query
	Should  []*Query
	MustNot []*Query

	// KindFielded
	Inner *Query

	// KindMoreLikeThis
	SeedDocID string
	TopTerms  int

	// KindNested
	Path        string
	NestedInner *Query
}

// Term builds a term-equality query.
func Term(field, term string) *Query { return &Query{Kind: KindTerm, Field: field, Term: term} }

// FuzzyTerm builds a fuzzy-edit-distance term query, carrying the
// transposition-cost flag alongside the edit distance.
func FuzzyTerm(field, term string, distance int, transpositions bool) *Query {
	return &Query{Kind: KindFuzzyTerm, Field: field, Term: term, FuzzyDistance: distance, FuzzyTranspositions: transpositions}
}

// Phrase and PhrasePrefix build ordered multi-term queries.
func Phrase(field string, terms []string) *Query {
	return &Query{Kind: KindPhrase, Field: field, Terms: terms}
}
func PhrasePrefix(field string, terms []string) *Query {
	return &Query{Kind: KindPhrasePrefix, Field: field, Terms: terms}
}

// Range builds an inclusivity-aware range query; lower/upper may be nil
// for an open bound.
func Range(field string, lower, upper any, lowerInclusive, upperInclusive, isDateTime bool) *Query {
	return &Query{
		Kind: KindRange, Field: field,
		LowerBound: lower, UpperBound: upper,
		LowerInclusive: lowerInclusive, UpperInclusive: upperInclusive,
		IsDateTimeRange: isDateTime,
	}
}

func Regex(field, pattern string) *Query {
	return &Query{Kind: KindRegex, Field: field, Pattern: pattern}
}

// Match builds an analyzer-driven query: the field's host-registered
// tokenizer splits matchText into terms, and op selects whether every
// term (OpAnd) or any term (OpOr) must match.
func Match(field, matchText string, op BooleanOp) *Query {
	return &Query{Kind: KindMatch, Field: field, MatchText: matchText, MatchOp: op}
}

func Boolean(must, should, mustNot []*Query) *Query {
	return &Query{Kind: KindBoolean, Must: must, Should: should, MustNot: mustNot}
}

func Exists(field string) *Query { return &Query{Kind: KindExists, Field: field} }

// Fielded resolves inner's field against the schema, appending a JSON
// path segment when the base field is a json kind.
func Fielded(field string, inner *Query) *Query {
	return &Query{Kind: KindFielded, Field: field, Inner: inner}
}

func MoreLikeThis(seedDocID string, topTerms int) *Query {
	return &Query{Kind: KindMoreLikeThis, SeedDocID: seedDocID, TopTerms: topTerms}
}

func Nested(path string, inner *Query) *Query {
	return &Query{Kind: KindNested, Path: path, NestedInner: inner}
}

// Compile resolves q's fields against schema and produces the engine's
// native query tree, applying the compile-time rewrites:
// - Range with equal, one-exclusive bounds rewrites to MatchNone.
// - JSON fielded queries append a path segment to the base field.
func Compile(q *Query, schema *segment.Schema) (segment.Query, error) {
	if q == nil {
		return bleve.NewMatchNoneQuery(), nil
	}
	if q.Field != "" && q.Kind != KindBoolean && q.Kind != KindMoreLikeThis {
		if err := resolveField(q.Field, schema); err != nil {
			return nil, err
		}
	}

	switch q.Kind {
	case KindTerm:
		tq := bleve.NewTermQuery(q.Term)
		tq.SetField(q.Field)
		return tq, nil

	case KindFuzzyTerm:
		fq := bleve.NewFuzzyQuery(q.Term)
		fq.SetField(q.Field)
		fq.Fuzziness = q.FuzzyDistance
		return fq, nil

	case KindPhrase:
		pq := bleve.NewPhraseQuery(q.Terms, q.Field)
		return pq, nil

	case KindPhrasePrefix:
		// bleve has no native phrase-prefix query; the last term is
		// expanded via a prefix match ORed with the exact phrase, the
		// closest native-tree equivalent of a true phrase-prefix
		// match.
		if len(q.Terms) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		exact := bleve.NewPhraseQuery(q.Terms, q.Field)
		prefix := bleve.NewPrefixQuery(q.Terms[len(q.Terms)-1])
		prefix.SetField(q.Field)
		return bleve.NewDisjunctionQuery(exact, prefix), nil

	case KindRange:
		if rangeIsEmpty(q) {
			return bleve.NewMatchNoneQuery(), nil
		}
		return compileRange(q)

	case KindRegex:
		rq := bleve.NewRegexpQuery(q.Pattern)
		rq.SetField(q.Field)
		return rq, nil

	case KindMatch:
		mq := bleve.NewMatchQuery(q.MatchText)
		mq.SetField(q.Field)
		if q.MatchOp == OpAnd {
			mq.Operator = bquery.MatchQueryOperatorAnd
		} else {
			mq.Operator = bquery.MatchQueryOperatorOr
		}
		return mq, nil

	case KindBoolean:
		return compileBoolean(q, schema)

	case KindExists:
		// bleve has no dedicated "exists" query; a wildcard term query
		// on the field approximates field presence.
		wq := bleve.NewWildcardQuery("*")
		wq.SetField(q.Field)
		return wq, nil

	case KindFielded:
		kind := schema.Kinds[q.Field]
		if kind == "json" && q.Inner != nil {
			q.Inner.Field = q.Field + "." + q.Inner.Field
		} else if q.Inner != nil {
			q.Inner.Field = q.Field
		}
		return Compile(q.Inner, schema)

	case KindMoreLikeThis:
		// Seed-document term extraction is performed by the caller
		// (it needs the live segment reader, not just the schema);
		// Compile only builds the disjunction from the already
		// extracted top terms, passed in via Terms.
		if len(q.Terms) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		subs := make([]segment.Query, 0, len(q.Terms))
		for _, t := range q.Terms {
			subs = append(subs, bleve.NewTermQuery(t))
		}
		return bleve.NewDisjunctionQuery(subs...), nil

	case KindNested:
		// bleve has no native nested-document join; the closest
		// approximation without that machinery is to wrap the
		// compiled inner query in a conjunction. Path is not applied:
		// the inner query's own field must already name the dotted
		// path, relying on the document model flattening nested
		// objects the way the JSON field kind already does.
		inner, err := Compile(q.NestedInner, schema)
		if err != nil {
			return nil, err
		}
		return bleve.NewConjunctionQuery(inner), nil

	default:
		return nil, errs.Query(errs.CodeQueryUnparseable, fmt.Sprintf("unknown query kind %d", q.Kind), nil)
	}
}

func resolveField(field string, schema *segment.Schema) error {
	switch field {
	case segment.FieldCtid, segment.FieldXmin, segment.FieldXmax:
		return nil
	}
	if _, ok := schema.Fields[field]; !ok {
		// A dotted path under a json field (the KindFielded JSON case)
		// resolves to its base field.
		if i := strings.IndexByte(field, '.'); i > 0 && schema.Kinds[field[:i]] == "json" {
			return nil
		}
		return errs.Schema(errs.CodeSchemaFieldNotIndexed, fmt.Sprintf("field %q is not indexed", field), nil).
			WithDetail("field", field)
	}
	return nil
}

// rangeIsEmpty implements the boundary rule: lower == upper with one
// bound exclusive yields zero results.
func rangeIsEmpty(q *Query) bool {
	if q.LowerBound == nil || q.UpperBound == nil {
		return false
	}
	if q.LowerBound != q.UpperBound {
		return false
	}
	return !q.LowerInclusive || !q.UpperInclusive
}

func compileRange(q *Query) (segment.Query, error) {
	if q.IsDateTimeRange {
		// bleve's NewDateRangeQuery takes time.Time bounds; callers
		// are expected to have already parsed date strings upstream
		// (per-type datum codecs live in the host), so a nil
		// bound here signals an open end.
		start, startOK := q.LowerBound.(time.Time)
		end, endOK := q.UpperBound.(time.Time)
		if (q.LowerBound != nil && !startOK) || (q.UpperBound != nil && !endOK) {
			return nil, errs.Query(errs.CodeQueryUnparseable, "date range bounds must be pre-parsed time.Time values", nil)
		}
		if !startOK && !endOK {
			return bleve.NewMatchAllQuery(), nil
		}
		dq := bleve.NewDateRangeInclusiveQuery(start, end, boolPtr(q.LowerInclusive && startOK), boolPtr(q.UpperInclusive && endOK))
		dq.SetField(q.Field)
		return dq, nil
	}

	lowerF, lowerOK := toFloat(q.LowerBound)
	upperF, upperOK := toFloat(q.UpperBound)
	if !lowerOK && !upperOK {
		return bleve.NewMatchAllQuery(), nil
	}
	nq := bleve.NewNumericRangeInclusiveQuery(nilIfNotOK(lowerF, lowerOK), nilIfNotOK(upperF, upperOK), boolPtr(q.LowerInclusive && lowerOK), boolPtr(q.UpperInclusive && upperOK))
	nq.SetField(q.Field)
	return nq, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func nilIfNotOK(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}

func boolPtr(b bool) *bool { return &b }

func compileBoolean(q *Query, schema *segment.Schema) (segment.Query, error) {
	bq := bleve.NewBooleanQuery()
	for _, sub := range q.Must {
		c, err := Compile(sub, schema)
		if err != nil {
			return nil, err
		}
		bq.AddMust(c)
	}
	for _, sub := range q.Should {
		c, err := Compile(sub, schema)
		if err != nil {
			return nil, err
		}
		bq.AddShould(c)
	}
	for _, sub := range q.MustNot {
		c, err := Compile(sub, schema)
		if err != nil {
			return nil, err
		}
		bq.AddMustNot(c)
	}
	return bq, nil
}
