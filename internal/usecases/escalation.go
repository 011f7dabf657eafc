package usecases

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeywordPolicy escalates when any configured keyword appears as a whole word,
// ignoring case and accents ("Atendente", "ATENDÊNTE" and "atendente!" all match).
type KeywordPolicy struct {
	keywords map[string]struct{}
}

func NewKeywordPolicy(keywords []string) *KeywordPolicy {
	p := &KeywordPolicy{keywords: make(map[string]struct{}, len(keywords))}
	for _, k := range keywords {
		if k = foldText(strings.TrimSpace(k)); k != "" {
			p.keywords[k] = struct{}{}
		}
	}
	return p
}

func (p *KeywordPolicy) ShouldEscalate(text string) bool {
	for _, word := range strings.FieldsFunc(foldText(text), notWordRune) {
		if _, ok := p.keywords[word]; ok {
			return true
		}
	}
	return false
}

// foldText lowercases and strips combining marks.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
