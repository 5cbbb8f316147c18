package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/camesdl/harvest/importer"
	"github.com/camesdl/harvest/schema/thesis"
	"github.com/camesdl/harvest/sources"
	"github.com/camesdl/harvest/store"
)

func testStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeSource serves a fixed batch of already-converted records in one page.
type fakeSource struct {
	name     thesis.SourceRepo
	records  []*thesis.Thesis
	fetchErr error
}

func (f *fakeSource) Name() thesis.SourceRepo { return f.name }

func (f *fakeSource) FetchPage(ctx context.Context, cursor any) (*sources.Page, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	page := &sources.Page{}
	for _, r := range f.records {
		page.Items = append(page.Items, r)
	}
	return page, nil
}

func (f *fakeSource) Convert(item any) (*thesis.Thesis, error) {
	return item.(*thesis.Thesis), nil
}

func record(repo thesis.SourceRepo, nativeID, title string) *thesis.Thesis {
	return &thesis.Thesis{
		Title:          title,
		AuthorName:     "Amadou Diallo",
		DefenseYear:    "2023",
		SourceRepo:     repo,
		SourceNativeID: nativeID,
		SourceURL:      "https://example.org/" + nativeID,
	}
}

func TestFullImportCompletesWithPerSourceStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	hal := &fakeSource{name: thesis.SourceHAL, records: []*thesis.Thesis{
		record(thesis.SourceHAL, "tel-001", "Paludisme et immunité au Mali"),
		record(thesis.SourceHAL, "tel-002", "Gouvernance foncière au Bénin"),
	}}
	gs := &fakeSource{name: thesis.SourceGreenstone, records: []*thesis.Thesis{
		record(thesis.SourceGreenstone, "HASH01", "Hydrologie du bassin du Niger"),
	}}
	sched := New(s, importer.New(hal, s), importer.New(gs, s))

	stats, err := sched.RunFullImport(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalImported != 3 {
		t.Fatalf("TotalImported = %d, want 3", stats.TotalImported)
	}
	if got := stats.Sources[string(thesis.SourceHAL)]; got.Imported != 2 {
		t.Fatalf("hal stats = %+v, want 2 imported", got)
	}
	if got := stats.Sources[string(thesis.SourceGreenstone)]; got.Imported != 1 {
		t.Fatalf("greenstone stats = %+v, want 1 imported", got)
	}

	jobs, err := sched.GetImportHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Kind != thesis.JobFullImport || job.Status != thesis.JobCompleted {
		t.Fatalf("job = %s/%s, want full-import/completed", job.Kind, job.Status)
	}
	if job.CompletedAt == nil {
		t.Fatal("terminal job must carry completed_at")
	}
	if job.Stats.TotalImported != 3 {
		t.Fatalf("persisted stats = %+v", job.Stats)
	}
}

func TestConnectorFailureDoesNotStopTheNextOne(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	broken := &fakeSource{name: thesis.SourceHAL, fetchErr: errors.New("connection reset")}
	healthy := &fakeSource{name: thesis.SourceGreenstone, records: []*thesis.Thesis{
		record(thesis.SourceGreenstone, "HASH01", "Hydrologie du bassin du Niger"),
	}}
	sched := New(s, importer.New(broken, s), importer.New(healthy, s))

	stats, err := sched.RunFullImport(ctx, 0)
	if err != nil {
		t.Fatalf("contained connector failure must not fail the run: %v", err)
	}
	if got := stats.Sources[string(thesis.SourceHAL)]; got.Errors != 1 {
		t.Fatalf("failing source stats = %+v, want 1 error", got)
	}
	if got := stats.Sources[string(thesis.SourceGreenstone)]; got.Imported != 1 {
		t.Fatalf("healthy source stats = %+v, want 1 imported", got)
	}

	jobs, err := sched.GetImportHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Status != thesis.JobCompleted {
		t.Fatalf("job status = %s, want completed", jobs[0].Status)
	}
}

// brokenInsertStore simulates a catalog that accepts job records but cannot
// persist theses anymore.
type brokenInsertStore struct {
	store.Store
}

func (b brokenInsertStore) InsertThesis(ctx context.Context, rec *thesis.Thesis) (string, error) {
	return "", errors.New("disk full")
}

func TestStoreFailureFailsTheJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	src := &fakeSource{name: thesis.SourceHAL, records: []*thesis.Thesis{
		record(thesis.SourceHAL, "tel-001", "Paludisme et immunité au Mali"),
	}}
	flaky := brokenInsertStore{Store: s}
	sched := New(s, importer.New(src, flaky))

	if _, err := sched.RunFullImport(ctx, 0); err == nil {
		t.Fatal("store failure must fail the run")
	}
	jobs, err := sched.GetImportHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	job := jobs[0]
	if job.Status != thesis.JobFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.Error == "" {
		t.Fatal("failed job must record the error")
	}
	if got := job.Stats.Sources[string(thesis.SourceHAL)]; got.Errors != 1 {
		t.Fatalf("persisted stats = %+v, want the failed item counted", got)
	}
}

func TestMaintenancePurgesHistoryAndRecountsCitations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		job := &thesis.Job{
			ID:        fmt.Sprintf("job-%02d", i),
			Kind:      thesis.JobFullImport,
			Status:    thesis.JobRunning,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	cited := record(thesis.SourceHAL, "tel-001", "Paludisme et résistance aux antipaludiques au Mali")
	citing := record(thesis.SourceHAL, "tel-002", "Étude du paludisme")
	citing.Abstract = "Résistance aux antipaludiques observée au Mali."
	unrelated := record(thesis.SourceGreenstone, "HASH01", "Gouvernance locale au Sénégal")
	for _, rec := range []*thesis.Thesis{cited, citing, unrelated} {
		if _, err := s.InsertThesis(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	sched := New(s)
	stats, err := sched.RunMaintenance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.TaskErrors) != 0 {
		t.Fatalf("unexpected task errors: %v", stats.TaskErrors)
	}
	if len(stats.Notes) != 2 {
		t.Fatalf("notes = %v, want purge and recount notes", stats.Notes)
	}

	// 60 seeded jobs plus the maintenance job itself, pruned to 50.
	jobs, err := s.ListJobs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != DefaultJobRetention {
		t.Fatalf("got %d jobs after purge, want %d", len(jobs), DefaultJobRetention)
	}
	if jobs[0].Kind != thesis.JobMaintenance {
		t.Fatalf("most recent job = %s, want the maintenance run", jobs[0].Kind)
	}

	got, err := s.FindOneThesis(ctx, store.Filter{SourceNativeID: "tel-001"})
	if err != nil {
		t.Fatal(err)
	}
	if got.SiteCitations != 1 {
		t.Fatalf("cited record has %d citations, want 1", got.SiteCitations)
	}
	for _, nativeID := range []string{"tel-002", "HASH01"} {
		got, err := s.FindOneThesis(ctx, store.Filter{SourceNativeID: nativeID})
		if err != nil {
			t.Fatal(err)
		}
		if got.SiteCitations != 0 {
			t.Fatalf("%s has %d citations, want 0", nativeID, got.SiteCitations)
		}
	}
}

// brokenPurgeStore fails the history purge but leaves everything else intact.
type brokenPurgeStore struct {
	store.Store
}

func (b brokenPurgeStore) PurgeJobs(ctx context.Context, retain int) (int, error) {
	return 0, errors.New("table locked")
}

func TestMaintenanceTaskFailureIsRecordedNotFatal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sched := New(brokenPurgeStore{Store: s})

	stats, err := sched.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("task failure must not fail the run: %v", err)
	}
	if len(stats.TaskErrors) != 1 {
		t.Fatalf("task errors = %v, want exactly the purge failure", stats.TaskErrors)
	}
	if len(stats.Notes) != 1 {
		t.Fatalf("notes = %v, want the recount to have run", stats.Notes)
	}

	jobs, err := s.ListJobs(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Status != thesis.JobCompleted {
		t.Fatalf("job status = %s, want completed despite task errors", jobs[0].Status)
	}
	if len(jobs[0].Stats.TaskErrors) != 1 {
		t.Fatalf("persisted stats = %+v", jobs[0].Stats)
	}
}

func TestRapidRestartCycles(t *testing.T) {
	// Restarting reassigns the stop channel while the previous loop may
	// still be selecting on it; each loop must hold its own reference so
	// old loops exit and never run concurrently with the new one.
	sched := New(testStore(t))
	sched.tick = time.Millisecond
	for i := 0; i < 50; i++ {
		sched.Start()
		time.Sleep(time.Millisecond)
		sched.Stop()
	}
	if sched.Running() {
		t.Fatal("scheduler should be stopped after the last cycle")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	sched := New(testStore(t))
	sched.tick = 10 * time.Millisecond

	sched.Start()
	sched.Start() // second call is a no-op
	if !sched.Running() {
		t.Fatal("scheduler should be running after Start")
	}
	sched.Stop()
	sched.Stop() // second call must not close the channel twice
	if sched.Running() {
		t.Fatal("scheduler should be stopped after Stop")
	}

	// A stopped scheduler can be started again.
	sched.Start()
	if !sched.Running() {
		t.Fatal("scheduler should restart cleanly")
	}
	sched.Stop()
}
