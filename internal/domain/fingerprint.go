package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Scope captures the explicit analysis scope a question implies. A question
// whose scope is a strict superset of a cached entry's must never reuse that
// entry, so the scope participates in the cache fingerprint.
type Scope struct {
	FX        bool  `json:"fx"`
	MultiYear bool  `json:"multi_year"`
	Years     []int `json:"years,omitempty"`
}

// Expanded reports whether the scope requests anything beyond a plain
// single-currency, single-year valuation question.
func (s Scope) Expanded() bool {
	return s.FX || s.MultiYear || len(s.Years) > 0
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	yearRe       = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	fxTerms        = []string{"fx", "currency", "currencies", "eur", "gbp", "jpy", "hedge", "exchange rate"}
	multiYearTerms = []string{"multi-year", "multi year", "multiyear", "scenario", "sensitivity", "forecast", "projection"}
)

// NormalizeQuestion lower-cases and collapses whitespace so that trivially
// reworded questions share a fingerprint base.
func NormalizeQuestion(question string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(question)), " ")
}

// ScopeOf derives the scope flags from the question text. Single-word terms
// match whole words only, so "eur" does not fire on "europe".
func ScopeOf(question string) Scope {
	text := NormalizeQuestion(question)
	words := wordSet(text)

	var s Scope
	for _, term := range fxTerms {
		if hasTerm(text, words, term) {
			s.FX = true
			break
		}
	}
	for _, term := range multiYearTerms {
		if hasTerm(text, words, term) {
			s.MultiYear = true
			break
		}
	}

	seen := map[int]struct{}{}
	for _, m := range yearRe.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if _, ok := seen[y]; !ok {
			seen[y] = struct{}{}
			s.Years = append(s.Years, y)
		}
	}
	sort.Ints(s.Years)
	if len(s.Years) > 1 {
		s.MultiYear = true
	}
	return s
}

// wordSet splits normalized text into its distinct words.
func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		words[f] = struct{}{}
	}
	return words
}

// hasTerm matches multi-word terms as substrings and single words against
// the word set.
func hasTerm(text string, words map[string]struct{}, term string) bool {
	if strings.ContainsAny(term, " -") {
		return strings.Contains(text, term)
	}
	_, ok := words[term]
	return ok
}

// Fingerprint derives the cache fingerprint for a question: a hash of the
// normalized text plus the canonical encoding of its scope flags. Expanding
// the scope changes the fingerprint, which forces a cache miss.
func Fingerprint(question string, scope Scope) string {
	var b strings.Builder
	b.WriteString(NormalizeQuestion(question))
	fmt.Fprintf(&b, "|fx=%t|my=%t", scope.FX, scope.MultiYear)
	for _, y := range scope.Years {
		fmt.Fprintf(&b, "|y=%d", y)
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}
