// Package store is the record-store boundary for the ingestion pipeline:
// canonical thesis records and the import job audit log. The interface keeps
// document-store semantics (find-one by filter, partial update, grouped
// counts); the shipped implementation is SQLite.
package store

import (
	"context"
	"errors"

	"github.com/camesdl/harvest/schema/thesis"
)

// ErrDuplicateKey is returned by InsertThesis when the (source_repo,
// source_native_id) uniqueness invariant would be violated.
var ErrDuplicateKey = errors.New("duplicate key")

// Filter selects thesis records; zero fields are ignored, set fields are
// ANDed. AuthorFold matches the author name case-insensitively.
type Filter struct {
	SourceRepo     thesis.SourceRepo
	SourceNativeID string
	SourceURL      string
	DefenseYear    string
	AuthorFold     string
}

// FindOpts bounds a FindTheses result set.
type FindOpts struct {
	Limit  int
	Offset int
}

// Store is what the importer, the duplicate detector and the scheduler need
// from the record store.
type Store interface {
	// InsertThesis persists a record, assigning its id (uuid) if empty.
	// The id is returned; connectors never invent one.
	InsertThesis(ctx context.Context, t *thesis.Thesis) (string, error)
	// FindOneThesis returns the first match or nil when nothing matches.
	FindOneThesis(ctx context.Context, f Filter) (*thesis.Thesis, error)
	FindTheses(ctx context.Context, f Filter, opts FindOpts) ([]*thesis.Thesis, error)
	// ListAllTheses is used by the maintenance citation recount, which is a
	// deliberate full pairwise scan over catalog-sized data.
	ListAllTheses(ctx context.Context) ([]*thesis.Thesis, error)
	UpdateThesisCitations(ctx context.Context, id string, n int) error
	CountTheses(ctx context.Context, f Filter) (int, error)
	// CountBySource groups record counts by source repository.
	CountBySource(ctx context.Context) (map[string]int, error)

	InsertJob(ctx context.Context, job *thesis.Job) error
	// CompleteJob transitions a running job to its terminal state exactly
	// once, setting completed_at.
	CompleteJob(ctx context.Context, id string, status thesis.JobStatus, stats thesis.JobStats, errMsg string) error
	// ListJobs returns job history, most recent first.
	ListJobs(ctx context.Context, limit int) ([]*thesis.Job, error)
	// PurgeJobs deletes the oldest jobs beyond the retention bound and
	// returns how many were removed.
	PurgeJobs(ctx context.Context, retain int) (int, error)

	Close() error
}
