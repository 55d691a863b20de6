package segment

import (
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// SeedTerms extracts the top-frequency terms of a seed document's field,
// the input a more-like-this query compiles its disjunction from. The
// seed is located by document key across this reader's segments; terms
// are folded to lower case and split on non-letter/digit boundaries, the
// analyzer-free approximation available through stored fields (the
// field's real tokenizer is host-registered and out of scope here).
func (r *SearchReader) SeedTerms(docKey, field string, topN int) ([]string, error) {
	if topN <= 0 {
		topN = 10
	}

	q := bleve.NewDocIDQuery([]string{docKey})
	for _, h := range r.resolve(nil) {
		req := bleve.NewSearchRequestOptions(q, 1, 0, false)
		req.Fields = []string{field}
		result, err := h.Index.Search(req)
		if err != nil {
			return nil, errs.Query(errs.CodeQueryUnparseable, "seed document lookup failed", err)
		}
		if len(result.Hits) == 0 {
			continue
		}
		text, _ := result.Hits[0].Fields[field].(string)
		if text == "" {
			return nil, nil
		}
		return topTerms(text, topN), nil
	}
	return nil, errs.Query(errs.CodeQueryUnparseable, "seed document not found", nil).
		WithDetail("key", docKey)
}

func topTerms(text string, n int) []string {
	freq := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) > 1 {
			freq[tok]++
		}
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
