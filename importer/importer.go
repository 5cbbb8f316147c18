// Package importer drives one connector end to end: paginate, convert,
// deduplicate, persist, count. One malformed item never loses the rest of
// its page; only a record-store failure aborts a run.
package importer

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/camesdl/harvest/convert"
	"github.com/camesdl/harvest/dedup"
	"github.com/camesdl/harvest/schema/thesis"
	"github.com/camesdl/harvest/sources"
	"github.com/camesdl/harvest/store"
)

// ErrStore marks a record-store failure. Runs that end with it should fail
// the surrounding job; plain fetch errors stay contained to their source.
var ErrStore = errors.New("record store failure")

// IsStoreErr reports whether err originated in the record store.
func IsStoreErr(err error) bool {
	return errors.Is(err, ErrStore)
}

// Importer runs a single source against the record store.
type Importer struct {
	Source   sources.Source
	Store    store.Store
	Detector *dedup.Detector
}

// New wires an importer for one source.
func New(src sources.Source, s store.Store) *Importer {
	return &Importer{Source: src, Store: s, Detector: dedup.New(s)}
}

// Run harvests at most maxRecords items. Processed counts thesis-shaped
// items only: raw items the converter rejects (wrong type, unusable title)
// are skipped without touching any counter. The accounting invariant
// Processed == Imported + Duplicates + Errors holds at every return,
// including early returns on store failure. Fetch errors end the run with
// whatever was counted so far; the caller decides whether that fails the
// whole job.
func (imp *Importer) Run(ctx context.Context, maxRecords int) (thesis.SourceStats, error) {
	var stats thesis.SourceStats
	name := string(imp.Source.Name())
	logger := log.WithField("source", name)
	logger.WithField("max_records", maxRecords).Info("import started")
	var cursor any
	for {
		page, err := imp.Source.FetchPage(ctx, cursor)
		if err != nil {
			logger.WithError(err).Error("page fetch failed")
			return stats, err
		}
		for _, item := range page.Items {
			if maxRecords > 0 && stats.Processed >= maxRecords {
				logger.WithField("stats", stats).Info("import reached max records")
				return stats, nil
			}
			rec, err := imp.Source.Convert(item)
			if convert.IsSkip(err) {
				continue // not a thesis; neither processed nor errored
			}
			stats.Processed++
			if err != nil {
				stats.Errors++
				logger.WithError(err).Warn("item conversion failed")
				continue
			}
			dup, err := imp.Detector.IsDuplicate(ctx, rec)
			if err != nil {
				stats.Errors++
				return stats, fmt.Errorf("%w: %v", ErrStore, err)
			}
			if dup {
				stats.Duplicates++
				continue
			}
			id, err := imp.Store.InsertThesis(ctx, rec)
			if err != nil {
				stats.Errors++
				return stats, fmt.Errorf("%w: %v", ErrStore, err)
			}
			stats.Imported++
			logger.WithFields(log.Fields{"id": id, "title": rec.Title}).Debug("imported")
		}
		if page.Next == nil {
			break
		}
		cursor = page.Next
	}
	logger.WithField("stats", stats).Info("import finished")
	return stats, nil
}
