package convert

import (
	"fmt"
	"strings"

	"github.com/camesdl/harvest/schema/oaidc"
	"github.com/camesdl/harvest/schema/thesis"
)

// maxKeywords caps the keyword list taken from dc:subject.
const maxKeywords = 10

// OaiRecordToThesis converts one OAI-PMH Dublin Core record into the
// canonical record. archiveBase is the public landing page prefix used when
// the record carries no http identifier of its own. Non-thesis records and
// records without a usable title are rejected with a Skip error.
func OaiRecordToThesis(rec *oaidc.Record, archiveBase string) (*thesis.Thesis, error) {
	if rec.Deleted() {
		return nil, ErrSkipDeleted
	}
	dc := &rec.Metadata.Dc
	if !IsThesisType(dc.Type) {
		return nil, ErrSkipNotThesis
	}
	title := CleanTitle(firstNonEmpty(dc.Title))
	switch {
	case title == "":
		return nil, ErrSkipNoTitle
	case len(title) < MinTitleLength:
		return nil, ErrSkipShortTitle
	}
	var keywords []string
	for _, s := range dc.Subject {
		if s = strings.TrimSpace(s); s != "" {
			keywords = append(keywords, s)
		}
		if len(keywords) == maxKeywords {
			break
		}
	}
	var discipline = DefaultDiscipline
	if len(keywords) > 0 {
		discipline = GuessDiscipline(keywords[0])
	}
	language := strings.ToLower(firstNonEmpty(dc.Language))
	if language == "" {
		language = "fr"
	}
	// Truncate by rune: dc:language is occasionally a spelled-out name
	// rather than an ISO code, and may start with a multibyte rune.
	if r := []rune(language); len(r) > 2 {
		language = string(r[:2])
	}
	nativeID := nativeIdentifier(rec.Header.Identifier)
	sourceURL := dc.URL()
	if sourceURL == "" && nativeID != "" {
		sourceURL = fmt.Sprintf("%s/%s", strings.TrimRight(archiveBase, "/"), nativeID)
	}
	var supervisors []string
	for _, c := range dc.Contributor {
		if c = strings.TrimSpace(c); c != "" {
			supervisors = append(supervisors, c)
		}
	}
	t := &thesis.Thesis{
		Title:           title,
		Abstract:        firstNonEmpty(dc.Description),
		Keywords:        keywords,
		Language:        language,
		Discipline:      discipline,
		Country:         GuessCountry("France", keywords...),
		University:      firstNonEmpty(dc.Publisher),
		Degree:          "Doctorat",
		AuthorName:      firstNonEmpty(dc.Creator),
		SupervisorNames: supervisors,
		DefenseYear:     ExtractYear(firstNonEmpty(dc.Date)),
		SourceRepo:      thesis.SourceHAL,
		SourceURL:       sourceURL,
		SourceNativeID:  nativeID,
		AccessType:      thesis.AccessOpen,
		License:         firstNonEmpty(dc.Rights),
	}
	if t.University == "" {
		t.University = "Université (HAL)"
	}
	return t, nil
}

// nativeIdentifier strips the oai:authority: prefix from an OAI header
// identifier, e.g. oai:hal.science:tel-01234567 becomes tel-01234567.
func nativeIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, ":"); i != -1 {
		return id[i+1:]
	}
	return id
}
