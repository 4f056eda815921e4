// Package cache is the stable/dynamic context assembly and cache-validity
// engine. It classifies stored knowledge by cache worthiness, builds a
// deterministic fingerprinted stable prefix, decides whether a previously
// built prefix is still valid, and assembles token-budgeted dynamic context
// for a query intent. All operations are stateless reads over an injected
// knowledge store.
package cache

import (
	"strings"

	"github.com/rmarchant/plinth/internal/content"
)

// Scoring thresholds and bonuses. A higher score means caching the entry
// pays for itself sooner.
const (
	sizeScoreSmall     = 10
	sizeScoreMedium    = 20
	sizeScoreLarge     = 30
	sizeThresholdSmall = 500
	sizeThresholdMed   = 1000
	sizeThresholdLarge = 2000

	categoryBonus = 25
	keyBonus      = 15

	maxScore = 100
)

// highValueCategories earn the category bonus: their content is read far
// more often than it changes.
var highValueCategories = map[string]bool{
	"ProjectGlossary": true,
	"Architecture":    true,
	"Requirements":    true,
	"Specifications":  true,
}

// highValueKeyTerms earn the key bonus when they appear in the entry key.
var highValueKeyTerms = []string{"config", "schema", "template", "pattern", "standard"}

// Score rates a custom-data entry's cache worthiness in [0, 100] from its
// serialized size, category, and key.
func Score(value content.Value, category, key string) int {
	score := 0

	size := serializedLen(value)
	switch {
	case size > sizeThresholdLarge:
		score += sizeScoreLarge
	case size > sizeThresholdMed:
		score += sizeScoreMedium
	case size > sizeThresholdSmall:
		score += sizeScoreSmall
	}

	if highValueCategories[category] {
		score += categoryBonus
	}

	keyLower := strings.ToLower(key)
	for _, term := range highValueKeyTerms {
		if strings.Contains(keyLower, term) {
			score += keyBonus
			break
		}
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// serializedLen measures content size: raw length for strings, canonical
// JSON length otherwise.
func serializedLen(v content.Value) int {
	if v.Kind() == content.KindString {
		return len(v.Str())
	}
	return len(v.JSON())
}
