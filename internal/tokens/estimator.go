// Package tokens estimates how many language-model tokens a piece of
// knowledge content would consume, without invoking a tokenizer. The
// estimate deliberately overshoots: it is used for prompt-cache budgeting,
// where reserving too little is worse than reserving too much.
package tokens

import (
	"strings"

	"github.com/rmarchant/plinth/internal/content"
)

// Estimation constants. The arithmetic below is part of the estimator's
// contract; changing any of these changes every stored token estimate.
const (
	// wordsPerToken converts the word signal into tokens (w / 0.25 == w * 4,
	// aggressive to account for subword tokenization).
	wordsPerToken = 0.25

	// minTokenFloor is the minimum estimate for any non-empty content.
	minTokenFloor = 25

	// structureThreshold and structureBonus inflate estimates for
	// substantial structured content.
	structureThreshold = 50
	structureBonus     = 2.2

	// largeContentThreshold and largeContentBonus add a further bump for
	// very large content.
	largeContentThreshold = 500
	largeContentBonus     = 1.3

	// keyWeight counts each map key, keyTextWeight each word of its text.
	keyWeight     = 3
	keyTextWeight = 2

	// listElementWeight counts each sequence element.
	listElementWeight = 2
)

// punctuation characters that earn an extra word-signal unit per occurrence.
const punctuation = ",.:;{}[]"

// Estimate returns the approximate token count for arbitrary structured
// content. A null top-level value estimates to 0; any other content is
// floored at minTokenFloor.
func Estimate(v content.Value) int {
	if v.IsNull() {
		return 0
	}
	return fromSignal(wordSignal(v))
}

// EstimateText estimates rendered text, e.g. an assembled context section.
func EstimateText(text string) int {
	return Estimate(content.String(text))
}

// fromSignal converts a word-count signal into a token estimate.
func fromSignal(w int) int {
	t := int(float64(w) / wordsPerToken)
	if t < 1 {
		t = 1
	}
	if w > 0 && t < minTokenFloor {
		t = minTokenFloor
		if w > t {
			t = w
		}
	}
	if w > structureThreshold {
		t = int(float64(t) * structureBonus)
	}
	if w > largeContentThreshold {
		t = int(float64(t) * largeContentBonus)
	}
	return t
}

// wordSignal recursively computes the word-count signal for a value.
func wordSignal(v content.Value) int {
	switch v.Kind() {
	case content.KindNull:
		return 0
	case content.KindString:
		return stringSignal(v.Str())
	case content.KindMap:
		w := v.Len() * keyWeight
		for _, key := range v.Keys() {
			w += len(strings.Fields(key)) * keyTextWeight
			w += wordSignal(v.Get(key))
		}
		return w
	case content.KindList:
		w := v.Len() * listElementWeight
		for _, item := range v.Items() {
			w += wordSignal(item)
		}
		return w
	default:
		// bool, number: stringified word count plus one extra unit
		return len(strings.Fields(v.Literal())) + 1
	}
}

// stringSignal counts whitespace-delimited words plus one unit per
// punctuation or structural character occurrence.
func stringSignal(s string) int {
	w := len(strings.Fields(s))
	for _, c := range s {
		if strings.ContainsRune(punctuation, c) {
			w++
		}
	}
	return w
}
