// Package scheduler runs the ingestion pipeline on a clock: a weekly full
// import across all connectors and a daily maintenance pass over the catalog
// and the job history. Every run is persisted as an import job before any
// network I/O, so the audit trail survives crashes mid-run.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/camesdl/harvest/dateutil"
	"github.com/camesdl/harvest/dedup"
	"github.com/camesdl/harvest/importer"
	"github.com/camesdl/harvest/schema/thesis"
	"github.com/camesdl/harvest/store"
)

const (
	// DefaultJobRetention bounds the persisted job history.
	DefaultJobRetention = 50
	// DefaultMaxPerSource caps how many records one connector may process
	// during a scheduled full import.
	DefaultMaxPerSource = 100

	importWeekday   = time.Sunday
	importHour      = 2 // 02:00 local
	maintenanceHour = 3 // 03:00 local
)

// Scheduler owns the timer loop and the two run kinds. Importers are run in
// declaration order; a connector failure is contained to its own stats and
// never stops the connectors after it.
type Scheduler struct {
	Store        store.Store
	Importers    []*importer.Importer
	MaxPerSource int
	JobRetention int

	running atomic.Bool
	stop    chan struct{}
	tick    time.Duration
}

// New wires a scheduler with the default caps.
func New(s store.Store, imps ...*importer.Importer) *Scheduler {
	return &Scheduler{
		Store:        s,
		Importers:    imps,
		MaxPerSource: DefaultMaxPerSource,
		JobRetention: DefaultJobRetention,
		tick:         time.Minute,
	}
}

// Start launches the timer loop. Calling it on a running scheduler is a
// no-op; concurrent callers race on a single CompareAndSwap so exactly one
// loop ever runs.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	// The loop gets its own reference to the stop channel: a restart
	// reassigns s.stop, and a previous loop still draining its select
	// must keep watching the channel Stop actually closed.
	stop := make(chan struct{})
	s.stop = stop
	now := time.Now()
	nextImport := dateutil.NextWeekly(now, importWeekday, importHour)
	nextMaintenance := dateutil.NextDaily(now, maintenanceHour)
	log.WithFields(log.Fields{
		"next_import":      nextImport.Format(time.RFC3339),
		"next_maintenance": nextMaintenance.Format(time.RFC3339),
	}).Info("scheduler started")
	go s.loop(stop, nextImport, nextMaintenance)
}

// Stop halts the timer loop. Runs already in flight finish on their own; the
// loop just stops dispatching new ones. Idempotent, like Start.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stop)
	log.Info("scheduler stopped")
}

// Running reports whether the timer loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) loop(stop <-chan struct{}, nextImport, nextMaintenance time.Time) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !now.Before(nextImport) {
				nextImport = dateutil.NextWeekly(now, importWeekday, importHour)
				go func() {
					if _, err := s.RunFullImport(context.Background(), s.MaxPerSource); err != nil {
						log.WithError(err).Error("scheduled full import failed")
					}
				}()
			}
			if !now.Before(nextMaintenance) {
				nextMaintenance = dateutil.NextDaily(now, maintenanceHour)
				go func() {
					if _, err := s.RunMaintenance(context.Background()); err != nil {
						log.WithError(err).Error("scheduled maintenance failed")
					}
				}()
			}
		}
	}
}

// RunFullImport executes every connector once, sequentially, each capped at
// maxPerSource records (0 means unbounded). The job record is inserted in
// running state before the first fetch. A connector failing stays inside
// that connector's stats; only a record-store failure fails the job itself.
func (s *Scheduler) RunFullImport(ctx context.Context, maxPerSource int) (thesis.JobStats, error) {
	job := &thesis.Job{Kind: thesis.JobFullImport, Status: thesis.JobRunning}
	if err := s.Store.InsertJob(ctx, job); err != nil {
		return thesis.JobStats{}, fmt.Errorf("insert job: %w", err)
	}
	logger := log.WithFields(log.Fields{"job": job.ID, "kind": job.Kind})
	logger.Info("full import started")

	stats := thesis.JobStats{Sources: make(map[string]thesis.SourceStats)}
	for _, imp := range s.Importers {
		name := string(imp.Source.Name())
		st, err := imp.Run(ctx, maxPerSource)
		if err != nil && importer.IsStoreErr(err) {
			stats.Sources[name] = st
			stats.TotalImported += st.Imported
			s.finishJob(ctx, job.ID, thesis.JobFailed, stats, err.Error())
			return stats, err
		}
		if err != nil {
			// Contained connector failure: record it against this
			// source and move on to the next one.
			st.Errors++
			logger.WithError(err).WithField("source", name).Error("connector failed")
		}
		stats.Sources[name] = st
		stats.TotalImported += st.Imported
	}

	if err := s.finishJob(ctx, job.ID, thesis.JobCompleted, stats, ""); err != nil {
		return stats, err
	}
	logger.WithField("total_imported", stats.TotalImported).Info("full import finished")
	return stats, nil
}

// RunMaintenance prunes job history beyond the retention bound and recounts
// intra-site citations. A failing task is recorded in the job stats and the
// remaining tasks still run; the job completes either way.
func (s *Scheduler) RunMaintenance(ctx context.Context) (thesis.JobStats, error) {
	job := &thesis.Job{Kind: thesis.JobMaintenance, Status: thesis.JobRunning}
	if err := s.Store.InsertJob(ctx, job); err != nil {
		return thesis.JobStats{}, fmt.Errorf("insert job: %w", err)
	}
	logger := log.WithFields(log.Fields{"job": job.ID, "kind": job.Kind})
	logger.Info("maintenance started")

	var stats thesis.JobStats
	retain := s.JobRetention
	if retain <= 0 {
		retain = DefaultJobRetention
	}
	if n, err := s.Store.PurgeJobs(ctx, retain); err != nil {
		stats.TaskErrors = append(stats.TaskErrors, fmt.Sprintf("purge job history: %v", err))
		logger.WithError(err).Error("job history purge failed")
	} else {
		stats.Notes = append(stats.Notes, fmt.Sprintf("purged %d jobs beyond retention %d", n, retain))
	}
	if n, err := s.recountCitations(ctx); err != nil {
		stats.TaskErrors = append(stats.TaskErrors, fmt.Sprintf("recount citations: %v", err))
		logger.WithError(err).Error("citation recount failed")
	} else {
		stats.Notes = append(stats.Notes, fmt.Sprintf("recounted citations across %d records", n))
	}

	if err := s.finishJob(ctx, job.ID, thesis.JobCompleted, stats, ""); err != nil {
		return stats, err
	}
	logger.WithField("notes", stats.Notes).Info("maintenance finished")
	return stats, nil
}

// GetImportHistory returns the persisted job history, most recent first.
func (s *Scheduler) GetImportHistory(ctx context.Context, limit int) ([]*thesis.Job, error) {
	return s.Store.ListJobs(ctx, limit)
}

// recountCitations rebuilds site_citations_count for every record: a record
// is cited by another when the other's title and abstract carry at least two
// words of its title. The scan is pairwise over the whole catalog, which
// stays cheap at catalog scale (thousands of records, not millions).
func (s *Scheduler) recountCitations(ctx context.Context) (int, error) {
	all, err := s.Store.ListAllTheses(ctx)
	if err != nil {
		return 0, err
	}
	titles := make([]map[string]struct{}, len(all))
	bodies := make([]map[string]struct{}, len(all))
	for i, t := range all {
		titles[i] = dedup.Tokenize(t.Title)
		bodies[i] = dedup.Tokenize(t.Title + " " + t.Abstract)
	}
	for i, t := range all {
		citations := 0
		for j := range all {
			if i == j {
				continue
			}
			if sharedWords(titles[i], bodies[j]) >= 2 {
				citations++
			}
		}
		if t.SiteCitations == citations {
			continue
		}
		if err := s.Store.UpdateThesisCitations(ctx, t.ID, citations); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

func sharedWords(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// finishJob moves a running job to its terminal state; the store guarantees
// this happens at most once per job.
func (s *Scheduler) finishJob(ctx context.Context, id string, status thesis.JobStatus, stats thesis.JobStats, errMsg string) error {
	if err := s.Store.CompleteJob(ctx, id, status, stats, errMsg); err != nil {
		log.WithError(err).WithField("job", id).Error("job completion not recorded")
		return err
	}
	return nil
}
