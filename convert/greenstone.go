package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/camesdl/harvest/schema/greenstone"
	"github.com/camesdl/harvest/schema/thesis"
)

// authorPatterns are tried in order against the result block text. The last
// one is a coarse two-capitalized-words fallback; author extraction from
// rendered HTML is unreliable and the duplicate detector accounts for that.
var authorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Aa]uteur\s*:?\s*([^\n\r]+)`),
	regexp.MustCompile(`[Bb]y\s+([^\n\r]+)`),
	regexp.MustCompile(`([A-Z][a-zà-ÿ]+\s+[A-Z][a-zà-ÿ]+)`),
}

var titleWordPattern = regexp.MustCompile(`\b[a-zA-ZÀ-ÿ]{4,}\b`)

// maxTitleKeywords caps the keywords synthesized from a scraped title.
const maxTitleKeywords = 5

// GreenstoneResultToThesis converts one scraped search hit into the
// canonical record. Results without a document id or a usable title are
// rejected with a Skip error.
func GreenstoneResultToThesis(r *greenstone.Result) (*thesis.Thesis, error) {
	if r.DocID == "" {
		return nil, ErrSkipNoDocID
	}
	title := CleanTitle(r.Title)
	switch {
	case title == "":
		return nil, ErrSkipNoTitle
	case len(title) < MinTitleLength:
		return nil, ErrSkipShortTitle
	}
	var author string
	for _, p := range authorPatterns {
		if m := p.FindStringSubmatch(r.Text); m != nil {
			author = strings.TrimSpace(m[1])
			break
		}
	}
	if author == "" {
		author = "Auteur inconnu"
	}
	year := DefaultYear
	if m := yearPattern.FindString(r.Text); m != "" {
		year = m
	}
	discipline := GuessDiscipline(r.Text)
	country := GuessCountry("Afrique", r.Collection, r.Text)
	var keywords []string
	for _, w := range titleWordPattern.FindAllString(strings.ToLower(title), maxTitleKeywords) {
		keywords = append(keywords, capitalize(w))
	}
	return &thesis.Thesis{
		Title:          title,
		Abstract:       fmt.Sprintf("Thèse de doctorat en %s soutenue en %s.", discipline, year),
		Keywords:       keywords,
		Language:       "fr",
		Discipline:     discipline,
		Country:        country,
		University:     fmt.Sprintf("Université %s", country),
		DoctoralSchool: "École Doctorale CAMES",
		Degree:         "Doctorat",
		AuthorName:     author,
		DefenseYear:    year,
		SourceRepo:     thesis.SourceGreenstone,
		SourceURL:      r.URL,
		SourceNativeID: r.DocID,
		AccessType:     thesis.AccessOpen,
		License:        "Libre accès",
	}, nil
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
