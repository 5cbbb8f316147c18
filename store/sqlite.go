package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/camesdl/harvest/schema/thesis"
)

const schema = `
CREATE TABLE IF NOT EXISTS theses (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    abstract TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    language TEXT NOT NULL DEFAULT '',
    discipline TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    university TEXT NOT NULL DEFAULT '',
    doctoral_school TEXT NOT NULL DEFAULT '',
    degree TEXT NOT NULL DEFAULT '',
    author_name TEXT NOT NULL DEFAULT '',
    supervisor_names TEXT NOT NULL DEFAULT '[]',
    defense_year TEXT NOT NULL DEFAULT '',
    source_repo TEXT NOT NULL,
    source_url TEXT NOT NULL DEFAULT '',
    source_native_id TEXT NOT NULL DEFAULT '',
    access_type TEXT NOT NULL DEFAULT 'open',
    license TEXT NOT NULL DEFAULT '',
    views_count INTEGER NOT NULL DEFAULT 0,
    downloads_count INTEGER NOT NULL DEFAULT 0,
    site_citations_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS theses_native_id
    ON theses(source_repo, source_native_id) WHERE source_native_id != '';
CREATE INDEX IF NOT EXISTS theses_defense_year ON theses(defense_year);
CREATE INDEX IF NOT EXISTS theses_source_url ON theses(source_url);

CREATE TABLE IF NOT EXISTS import_jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    stats TEXT NOT NULL DEFAULT '{}',
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS import_jobs_started_at ON import_jobs(started_at);
`

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// Open connects to (or creates) the database and bootstraps the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) InsertThesis(ctx context.Context, t *thesis.Thesis) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	keywords, err := json.Marshal(emptyNotNull(t.Keywords))
	if err != nil {
		return "", err
	}
	supervisors, err := json.Marshal(emptyNotNull(t.SupervisorNames))
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO theses (
        id, title, abstract, keywords, language, discipline, country,
        university, doctoral_school, degree, author_name, supervisor_names,
        defense_year, source_repo, source_url, source_native_id, access_type,
        license, views_count, downloads_count, site_citations_count,
        created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Abstract, string(keywords), t.Language, t.Discipline,
		t.Country, t.University, t.DoctoralSchool, t.Degree, t.AuthorName,
		string(supervisors), t.DefenseYear, string(t.SourceRepo), t.SourceURL,
		t.SourceNativeID, string(t.AccessType), t.License, t.ViewsCount,
		t.DownloadsCount, t.SiteCitations,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("%w: (%s, %s)", ErrDuplicateKey, t.SourceRepo, t.SourceNativeID)
		}
		return "", fmt.Errorf("insert thesis: %w", err)
	}
	return t.ID, nil
}

// whereClause builds the WHERE fragment and args for a filter.
func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.SourceRepo != "" {
		conds = append(conds, "source_repo = ?")
		args = append(args, string(f.SourceRepo))
	}
	if f.SourceNativeID != "" {
		conds = append(conds, "source_native_id = ?")
		args = append(args, f.SourceNativeID)
	}
	if f.SourceURL != "" {
		conds = append(conds, "source_url = ?")
		args = append(args, f.SourceURL)
	}
	if f.DefenseYear != "" {
		conds = append(conds, "defense_year = ?")
		args = append(args, f.DefenseYear)
	}
	if f.AuthorFold != "" {
		conds = append(conds, "LOWER(author_name) = LOWER(?)")
		args = append(args, f.AuthorFold)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const thesisColumns = `id, title, abstract, keywords, language, discipline,
    country, university, doctoral_school, degree, author_name,
    supervisor_names, defense_year, source_repo, source_url,
    source_native_id, access_type, license, views_count, downloads_count,
    site_citations_count, created_at, updated_at`

func (s *SQLite) FindOneThesis(ctx context.Context, f Filter) (*thesis.Thesis, error) {
	recs, err := s.FindTheses(ctx, f, FindOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *SQLite) FindTheses(ctx context.Context, f Filter, opts FindOpts) ([]*thesis.Thesis, error) {
	where, args := whereClause(f)
	q := "SELECT " + thesisColumns + " FROM theses" + where + " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find theses: %w", err)
	}
	defer rows.Close()
	return scanTheses(rows)
}

func (s *SQLite) ListAllTheses(ctx context.Context) ([]*thesis.Thesis, error) {
	return s.FindTheses(ctx, Filter{}, FindOpts{})
}

func scanTheses(rows *sql.Rows) ([]*thesis.Thesis, error) {
	var out []*thesis.Thesis
	for rows.Next() {
		var t thesis.Thesis
		var keywords, supervisors, sourceRepo, accessType, createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Title, &t.Abstract, &keywords,
			&t.Language, &t.Discipline, &t.Country, &t.University,
			&t.DoctoralSchool, &t.Degree, &t.AuthorName, &supervisors,
			&t.DefenseYear, &sourceRepo, &t.SourceURL, &t.SourceNativeID,
			&accessType, &t.License, &t.ViewsCount, &t.DownloadsCount,
			&t.SiteCitations, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thesis: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &t.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
		if err := json.Unmarshal([]byte(supervisors), &t.SupervisorNames); err != nil {
			return nil, fmt.Errorf("decode supervisors: %w", err)
		}
		t.SourceRepo = thesis.SourceRepo(sourceRepo)
		t.AccessType = thesis.AccessType(accessType)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateThesisCitations(ctx context.Context, id string, n int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE theses SET site_citations_count = ?, updated_at = ? WHERE id = ?`,
		n, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update citations: %w", err)
	}
	return nil
}

func (s *SQLite) CountTheses(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM theses"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count theses: %w", err)
	}
	return n, nil
}

func (s *SQLite) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_repo, COUNT(*) FROM theses GROUP BY source_repo`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			repo string
			n    int
		)
		if err := rows.Scan(&repo, &n); err != nil {
			return nil, err
		}
		counts[repo] = n
	}
	return counts, rows.Err()
}

func (s *SQLite) InsertJob(ctx context.Context, job *thesis.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO import_jobs
        (id, kind, status, started_at, completed_at, stats, error)
        VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		job.ID, string(job.Kind), string(job.Status),
		job.StartedAt.Format(time.RFC3339Nano), string(stats), job.Error)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLite) CompleteJob(ctx context.Context, id string, status thesis.JobStatus, stats thesis.JobStats, errMsg string) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE import_jobs
        SET status = ?, completed_at = ?, stats = ?, error = ?
        WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano),
		string(b), errMsg, id, string(thesis.JobRunning))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("complete job: %s not found or already terminal", id)
	}
	return nil
}

func (s *SQLite) ListJobs(ctx context.Context, limit int) ([]*thesis.Job, error) {
	q := `SELECT id, kind, status, started_at, completed_at, stats, error
        FROM import_jobs ORDER BY started_at DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*thesis.Job
	for rows.Next() {
		var job thesis.Job
		var kind, status, started, stats string
		var completed sql.NullString
		if err := rows.Scan(&job.ID, &kind, &status, &started, &completed, &stats, &job.Error); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Kind = thesis.JobKind(kind)
		job.Status = thesis.JobStatus(status)
		job.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if completed.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completed.String)
			job.CompletedAt = &t
		}
		if err := json.Unmarshal([]byte(stats), &job.Stats); err != nil {
			return nil, fmt.Errorf("decode job stats: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *SQLite) PurgeJobs(ctx context.Context, retain int) (int, error) {
	if retain < 0 {
		retain = 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_jobs WHERE id NOT IN
        (SELECT id FROM import_jobs ORDER BY started_at DESC LIMIT ?)`, retain)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// emptyNotNull keeps JSON columns as [] instead of null.
func emptyNotNull(vs []string) []string {
	if vs == nil {
		return []string{}
	}
	return vs
}
