package eventsources

import (
	"sort"
	"strings"
	"unicode"
)

const (
	feedKeywordBonus = 0.2
	weightedFactor   = 0.1
)

var keywordWeights = map[string]float64{
	"bitcoin":        1.0,
	"btc":            1.0,
	"ethereum":       0.9,
	"eth":            0.9,
	"crypto":         0.8,
	"cryptocurrency": 0.8,
	"blockchain":     0.7,
	"defi":           0.6,
	"nft":            0.5,
	"regulation":     0.8,
	"sec":            0.8,
	"adoption":       0.7,
	"institutional":  0.7,
}

var weightedKeywords = sortedKeys(keywordWeights)

var positiveWords = toSet(
	"bullish", "bull", "rise", "rising", "up", "gain", "gains", "growth",
	"positive", "optimistic", "surge", "rally", "breakthrough", "adoption",
	"institutional", "investment", "buy", "buying", "support",
)

var negativeWords = toSet(
	"bearish", "bear", "fall", "falling", "down", "loss", "losses", "decline",
	"negative", "pessimistic", "crash", "dump", "regulation", "ban", "banned",
	"sell", "selling", "resistance", "concern", "worry", "fear",
)

// RelevanceScore adds a flat bonus for every feed keyword present and a
// weighted amount per occurrence of the global keyword table, capped at 1.
func RelevanceScore(text string, feedKeywords []string) float64 {
	lower := strings.ToLower(text)
	score := 0.0

	for _, kw := range feedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			score += feedKeywordBonus
		}
	}

	for _, kw := range weightedKeywords {
		if n := strings.Count(lower, kw); n > 0 {
			score += float64(n) * keywordWeights[kw] * weightedFactor
		}
	}

	if score > 1.0 {
		return 1.0
	}

	return score
}

// SentimentScore is (positive - negative) / max(words*0.1, 1), clamped to [-1, 1].
func SentimentScore(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	pos, neg := 0, 0
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}

	norm := float64(len(words)) * 0.1
	if norm < 1 {
		norm = 1
	}

	score := float64(pos-neg) / norm
	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	}

	return score
}

// ExtractKeywords returns the weighted keywords found in text, sorted.
func ExtractKeywords(text string) []string {
	lower := strings.ToLower(text)

	var found []string
	for _, kw := range weightedKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}

	return found
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
