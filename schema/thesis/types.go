// Package thesis contains the canonical record every source is mapped into,
// plus the persisted audit record for import runs.
package thesis

import "time"

// SourceRepo enumerates the repositories we harvest from.
type SourceRepo string

const (
	SourceHAL        SourceRepo = "hal-oai"    // OAI-PMH metadata endpoint
	SourceGreenstone SourceRepo = "greenstone" // HTML digital library search
	SourceOther      SourceRepo = "other"
)

// AccessType describes how a full text can be obtained.
type AccessType string

const (
	AccessOpen      AccessType = "open"
	AccessPaywalled AccessType = "paywalled"
)

// Thesis is the canonical record. Connectors never set ID; it is assigned
// exactly once by the store at insert time, so a retried extraction cannot
// mint conflicting identifiers.
type Thesis struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract"`
	Keywords        []string   `json:"keywords"`
	Language        string     `json:"language"` // 2-letter code
	Discipline      string     `json:"discipline"`
	Country         string     `json:"country"`
	University      string     `json:"university"`
	DoctoralSchool  string     `json:"doctoral_school,omitempty"`
	Degree          string     `json:"degree,omitempty"`
	AuthorName      string     `json:"author_name"`
	SupervisorNames []string   `json:"supervisor_names"`
	DefenseYear     string     `json:"defense_year"` // 4-digit string
	SourceRepo      SourceRepo `json:"source_repo"`
	SourceURL       string     `json:"source_url"`
	SourceNativeID  string     `json:"source_native_id"`
	AccessType      AccessType `json:"access_type"`
	License         string     `json:"license,omitempty"`
	ViewsCount      int        `json:"views_count"`
	DownloadsCount  int        `json:"downloads_count"`
	SiteCitations   int        `json:"site_citations_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// JobKind is the type of a scheduled or manually triggered run.
type JobKind string

const (
	JobFullImport  JobKind = "full-import"
	JobMaintenance JobKind = "maintenance"
)

// JobStatus is the lifecycle state of a run; completed and failed are
// terminal.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// SourceStats counts outcomes for one connector within a run. The accounting
// invariant is Processed == Imported + Duplicates + Errors.
type SourceStats struct {
	Processed  int `json:"processed"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Add folds another stats value into s.
func (s *SourceStats) Add(o SourceStats) {
	s.Processed += o.Processed
	s.Imported += o.Imported
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
}

// JobStats is the aggregated outcome of a run, serialized into the job
// record. Sources is keyed by SourceRepo; Notes and TaskErrors are used by
// maintenance runs.
type JobStats struct {
	Sources       map[string]SourceStats `json:"sources,omitempty"`
	TotalImported int                    `json:"total_imported"`
	Notes         []string               `json:"notes,omitempty"`
	TaskErrors    []string               `json:"task_errors,omitempty"`
}

// Job is one persisted import or maintenance run. It is created in running
// state before any network I/O and transitioned to a terminal state exactly
// once; nothing mutates it afterwards except history pruning.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       JobStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
}
