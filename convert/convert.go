// Package convert maps raw source items into the canonical thesis record.
// Everything here is pure: lookup tables and regular expressions only, no
// network access, so the heuristics stay testable in isolation.
package convert

import (
	"errors"
	"regexp"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/camesdl/harvest/normal"
)

// MinTitleLength is the minimum number of bytes a title must have; anything
// shorter is rejected as noise rather than a thesis.
const MinTitleLength = 10

// DefaultYear is the sentinel defense year used when no 4-digit run can be
// found in the source data.
const DefaultYear = "2023"

// Skip marks an item that should be silently dropped: it does not look like
// a thesis. Skips are not errors in the accounting sense.
type Skip struct {
	err error
}

func (s Skip) Error() string {
	return s.err.Error()
}

var (
	ErrSkipNotThesis  = Skip{err: errors.New("not a thesis document type")}
	ErrSkipNoTitle    = Skip{err: errors.New("no title")}
	ErrSkipShortTitle = Skip{err: errors.New("title too short")}
	ErrSkipDeleted    = Skip{err: errors.New("deleted upstream record")}
	ErrSkipNoDocID    = Skip{err: errors.New("no document id")}
)

// IsSkip reports whether err is a rejection, as opposed to a genuine
// extraction failure.
func IsSkip(err error) bool {
	var s Skip
	return errors.As(err, &s)
}

// thesisTypes is the vocabulary used to recognize thesis-like document
// types, matched case-insensitively as substrings.
var thesisTypes = []string{"thesis", "dissertation", "thèse"}

// IsThesisType reports whether any of the given document type strings looks
// like a thesis or dissertation.
func IsThesisType(types []string) bool {
	for _, t := range types {
		lower := strings.ToLower(t)
		for _, v := range thesisTypes {
			if strings.Contains(lower, v) {
				return true
			}
		}
	}
	return false
}

// disciplineTable maps keyword fragments to a coarse discipline. Order
// matters, first match wins.
var disciplineTable = []struct {
	terms      []string
	discipline string
}{
	{[]string{"inform", "comput", "data"}, "Informatique"},
	{[]string{"medic", "médec", "health", "santé"}, "Médecine"},
	{[]string{"econ", "écono", "business"}, "Économie"},
	{[]string{"geo", "géo", "climat", "environ"}, "Géographie"},
	{[]string{"ling", "lang"}, "Linguistique"},
	{[]string{"droit", "law", "jurid"}, "Droit"},
	{[]string{"socio"}, "Sociologie"},
}

// DefaultDiscipline is used when no keyword matches the table.
const DefaultDiscipline = "Sciences"

// GuessDiscipline classifies a piece of text (usually the first keyword)
// into a coarse discipline.
func GuessDiscipline(text string) string {
	lower := strings.ToLower(text)
	for _, row := range disciplineTable {
		for _, term := range row.terms {
			if strings.Contains(lower, term) {
				return row.discipline
			}
		}
	}
	return DefaultDiscipline
}

// countryTable maps name fragments to the canonical country name.
var countryTable = []struct {
	fragments []string
	country   string
}{
	{[]string{"sénégal", "senegal"}, "Sénégal"},
	{[]string{"burkina"}, "Burkina Faso"},
	{[]string{"côte d'ivoire", "cote d'ivoire", "ivory coast"}, "Côte d'Ivoire"},
	{[]string{"bénin", "benin"}, "Bénin"},
	{[]string{"togo"}, "Togo"},
	{[]string{"guinée", "guinee", "guinea"}, "Guinée"},
	{[]string{"madagascar"}, "Madagascar"},
	{[]string{"cameroun", "cameroon"}, "Cameroun"},
	{[]string{"tchad", "chad"}, "Tchad"},
	{[]string{"centrafrique"}, "République Centrafricaine"},
	{[]string{"congo"}, "Congo"},
	{[]string{"gabon"}, "Gabon"},
	{[]string{"mauritanie"}, "Mauritanie"},
	{[]string{"mali"}, "Mali"},
	{[]string{"niger"}, "Niger"},
}

// GuessCountry scans the given texts for a known country name and returns
// the canonical spelling, or fallback when nothing matches.
func GuessCountry(fallback string, texts ...string) string {
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, row := range countryTable {
			for _, fragment := range row.fragments {
				if strings.Contains(lower, fragment) {
					return row.country
				}
			}
		}
	}
	return fallback
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ExtractYear pulls a 4-digit defense year out of a free-form date string.
// It first tries a lenient date parse, then falls back to the first 4-digit
// run, then to the sentinel DefaultYear.
func ExtractYear(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return DefaultYear
	}
	if t, err := dateparse.ParseAny(date); err == nil {
		if y := t.Year(); y >= 1900 && y <= 2100 {
			return t.Format("2006")
		}
	}
	if m := yearPattern.FindString(date); m != "" {
		return m
	}
	return DefaultYear
}

var titlePipeline = &normal.Pipeline{Normalizer: []normal.Normalizer{
	&normal.CollapseWS{},
	&normal.StripLabel{Labels: []string{"Title:", "TITLE:", "Titre:", "Abstract:"}},
}}

// CleanTitle collapses whitespace and strips label prefixes that do not
// belong in a title.
func CleanTitle(title string) string {
	return titlePipeline.Normalize(title)
}

func firstNonEmpty(vs []string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
