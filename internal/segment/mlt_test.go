package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopTermsRanksByFrequency(t *testing.T) {
	terms := topTerms("keyboard keyboard switch cable keyboard switch", 2)
	assert.Equal(t, []string{"keyboard", "switch"}, terms)
}

func TestTopTermsDropsSingleLetters(t *testing.T) {
	terms := topTerms("a b keyboard", 10)
	assert.Equal(t, []string{"keyboard"}, terms)
}

func TestSeedTermsFromStoredDocument(t *testing.T) {
	r, _ := openTestReader(t)

	terms, err := r.SeedTerms("1", "description", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plastic", "keyboard"}, terms)
}

func TestSeedTermsMissingDocument(t *testing.T) {
	r, _ := openTestReader(t)

	_, err := r.SeedTerms("nope", "description", 5)
	require.Error(t, err)
}
