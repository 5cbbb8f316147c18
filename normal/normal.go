// Package normal holds small composable text normalizers for cleaning
// harvested metadata. Repository payloads carry labels, stray whitespace and
// inconsistent casing; connectors compose a pipeline per field instead of
// scattering string fixups.
package normal

import (
	"strings"
	"unicode"
)

// Normalizer rewrites a string into a cleaner form.
type Normalizer interface {
	Normalize(string) string
}

// Pipeline applies its normalizers in order.
type Pipeline struct {
	Normalizer []Normalizer
}

func (p *Pipeline) Normalize(s string) string {
	for _, n := range p.Normalizer {
		s = n.Normalize(s)
	}
	return s
}

// CollapseWS trims the ends and folds any whitespace run into one space.
type CollapseWS struct{}

func (c *CollapseWS) Normalize(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// StripLabel removes a leading field label like "Titre:" that repositories
// sometimes leave inside the value itself.
type StripLabel struct {
	Labels []string
}

func (s *StripLabel) Normalize(v string) string {
	for _, label := range s.Labels {
		if strings.HasPrefix(v, label) {
			return strings.TrimSpace(strings.TrimPrefix(v, label))
		}
	}
	return v
}

// Lowercase folds the value for case-insensitive comparison.
type Lowercase struct{}

func (l *Lowercase) Normalize(v string) string {
	return strings.ToLower(v)
}

// LettersAndDigits replaces everything that is not a letter or digit with a
// space, so word boundaries survive punctuation and hyphenation.
type LettersAndDigits struct{}

func (l *LettersAndDigits) Normalize(v string) string {
	var b strings.Builder
	for _, c := range v {
		if unicode.IsLetter(c) || unicode.IsNumber(c) {
			b.WriteRune(c)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
