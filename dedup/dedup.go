// Package dedup decides whether a candidate record already exists in the
// catalog. It is heuristic and best-effort: missed duplicates are
// acceptable, wrongly merged distinct theses are not, so a fuzzy match
// always needs corroborating signals beyond the title.
package dedup

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/camesdl/harvest/normal"
	"github.com/camesdl/harvest/schema/thesis"
	"github.com/camesdl/harvest/store"
)

const (
	// ThresholdHAL is the title-overlap bar for OAI-sourced candidates,
	// where the candidate set is already restricted by author and year.
	ThresholdHAL = 0.70
	// ThresholdGreenstone is the bar for scraped candidates; author
	// extraction there is too unreliable to restrict by, so only the
	// defense year corroborates.
	ThresholdGreenstone = 0.60
	// maxCandidates bounds the fuzzy comparison set per lookup.
	maxCandidates = 50
)

// Detector answers IsDuplicate against the record store, read-only.
type Detector struct {
	Store store.Store
}

// New returns a detector over the given store.
func New(s store.Store) *Detector {
	return &Detector{Store: s}
}

// IsDuplicate reports whether an equivalent record already exists. First
// match wins: exact (source_repo, source_native_id), then exact source_url,
// then fuzzy title overlap restricted by defense year (and author, for
// OAI-sourced candidates).
func (d *Detector) IsDuplicate(ctx context.Context, cand *thesis.Thesis) (bool, error) {
	if cand.SourceNativeID != "" {
		existing, err := d.Store.FindOneThesis(ctx, store.Filter{
			SourceRepo:     cand.SourceRepo,
			SourceNativeID: cand.SourceNativeID,
		})
		if err != nil {
			return false, err
		}
		if existing != nil {
			return true, nil
		}
	}
	if cand.SourceURL != "" {
		existing, err := d.Store.FindOneThesis(ctx, store.Filter{SourceURL: cand.SourceURL})
		if err != nil {
			return false, err
		}
		if existing != nil {
			return true, nil
		}
	}
	return d.fuzzyMatch(ctx, cand)
}

func (d *Detector) fuzzyMatch(ctx context.Context, cand *thesis.Thesis) (bool, error) {
	filter := store.Filter{DefenseYear: cand.DefenseYear}
	threshold := ThresholdGreenstone
	if cand.SourceRepo == thesis.SourceHAL {
		if strings.TrimSpace(cand.AuthorName) == "" {
			return false, nil
		}
		filter.AuthorFold = cand.AuthorName
		threshold = ThresholdHAL
	}
	existing, err := d.Store.FindTheses(ctx, filter, store.FindOpts{Limit: maxCandidates})
	if err != nil {
		return false, err
	}
	candWords := titleWords(cand.Title)
	for _, e := range existing {
		sim := overlap(candWords, titleWords(e.Title))
		if sim > threshold {
			log.WithFields(log.Fields{
				"title":      cand.Title,
				"existing":   e.ID,
				"similarity": sim,
			}).Debug("fuzzy duplicate")
			return true, nil
		}
	}
	return false, nil
}

// TitleSimilarity computes token-set overlap between two titles:
// |intersection| / max(|a|, |b|), over lowercased words. Symmetric by
// construction.
func TitleSimilarity(a, b string) float64 {
	return overlap(titleWords(a), titleWords(b))
}

// Tokenize splits text into its lowercased word set, the same tokenization
// the fuzzy matcher uses. The maintenance citation recount shares it.
func Tokenize(s string) map[string]struct{} {
	return titleWords(s)
}

// titleWords tokenizes a title on anything that is not a letter or digit,
// so "Burkina-Faso" and "Burkina Faso" yield the same tokens.
// wordPipeline folds case and strips punctuation so that hyphenation or
// stray markup does not change the word set.
var wordPipeline = &normal.Pipeline{Normalizer: []normal.Normalizer{
	&normal.Lowercase{},
	&normal.LettersAndDigits{},
}}

func titleWords(title string) map[string]struct{} {
	fields := strings.Fields(wordPipeline.Normalize(title))
	words := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		words[w] = struct{}{}
	}
	return words
}

func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var n int
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(n) / float64(max)
}
