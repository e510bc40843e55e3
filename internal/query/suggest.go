package query

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/soundboard/internal/avatar"
)

// SuggestThreshold is the minimum similarity for a suggestion.
const SuggestThreshold = 0.75

// phoneticBonus is added when a query token sounds like a name token.
const phoneticBonus = 0.1

// Suggestion is a "did you mean" candidate.
type Suggestion struct {
	// Text is the suggested avatar name, voice name, or category.
	Text  string
	Score float64
}

// Suggest returns names from the collection that resemble q, best first.
// It is meant for searches that found nothing, so misspellings like "lagh"
// still lead to "Laugh". Similarity is Jaro-Winkler over the whole string
// and over individual words, nudged up when Double Metaphone codes agree.
func Suggest(avatars []avatar.Avatar, q string, limit int) []Suggestion {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)
	qCodes := metaphones(qTokens)

	best := make(map[string]Suggestion)
	consider := func(text string) {
		key := strings.ToLower(strings.TrimSpace(text))
		if key == "" {
			return
		}
		score := similarity(q, qTokens, qCodes, key)
		if score < SuggestThreshold {
			return
		}
		if cur, ok := best[key]; !ok || score > cur.Score {
			best[key] = Suggestion{Text: text, Score: score}
		}
	}
	for _, a := range avatars {
		consider(a.Name)
		for _, v := range a.Voices {
			consider(v.Name)
			consider(v.Category)
		}
	}

	out := make([]Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Text, b.Text)
	})
	return truncate(out, limit)
}

func similarity(q string, qTokens []string, qCodes map[string]bool, name string) float64 {
	tokens := strings.Fields(name)
	score := matchr.JaroWinkler(q, name, false)
	for _, qt := range qTokens {
		for _, nt := range tokens {
			score = max(score, matchr.JaroWinkler(qt, nt, false))
		}
	}
	for code := range metaphones(tokens) {
		if qCodes[code] {
			score += phoneticBonus
			break
		}
	}
	return min(score, 1)
}

func metaphones(tokens []string) map[string]bool {
	codes := make(map[string]bool, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = true
		}
		if s != "" {
			codes[s] = true
		}
	}
	return codes
}
