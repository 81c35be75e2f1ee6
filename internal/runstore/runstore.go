// Package runstore keeps a ledger of pipeline runs in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"deckflow/internal/model"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

const schemaSQL = `CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	task          TEXT NOT NULL,
	status        TEXT NOT NULL,
	fatal_stage   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	export_error  TEXT NOT NULL DEFAULT '',
	slides        TEXT NOT NULL DEFAULT '[]',
	skipped       TEXT NOT NULL DEFAULT '[]',
	outline       TEXT NOT NULL DEFAULT '',
	artifact_path TEXT NOT NULL DEFAULT '',
	published_url TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);`

// Store is the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the record for res.RunID.
func (s *Store) Save(ctx context.Context, res *model.Result) error {
	slides, err := json.Marshal(res.SlideIndices())
	if err != nil {
		return err
	}
	skipped, err := json.Marshal(nonNil(res.Skipped))
	if err != nil {
		return err
	}
	var outline []byte
	if res.Outline != nil {
		if outline, err = json.Marshal(res.Outline); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, task, status, fatal_stage, error, export_error, slides, skipped, outline, artifact_path, published_url, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Task, string(res.Status), res.FatalStage, res.Error, res.ExportError,
		string(slides), string(skipped), string(outline), res.ArtifactPath, res.PublishedURL,
		res.StartedAt.UTC(), res.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("save run %s: %w", res.RunID, err)
	}
	return nil
}

const selectCols = `id, task, status, fatal_stage, error, export_error, slides, skipped, outline, artifact_path, published_url, started_at, finished_at`

// Get loads one run. Slides carry index and path only.
func (s *Store) Get(ctx context.Context, id string) (*model.Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM runs WHERE id = ?`, id)
	res, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res, err
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]*model.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCols+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Result
	for rows.Next() {
		res, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*model.Result, error) {
	var (
		res                      model.Result
		status                   string
		slides, skipped, outline string
		started, finished        time.Time
	)
	if err := sc.Scan(&res.RunID, &res.Task, &status, &res.FatalStage, &res.Error, &res.ExportError,
		&slides, &skipped, &outline, &res.ArtifactPath, &res.PublishedURL, &started, &finished); err != nil {
		return nil, err
	}
	res.Status = model.Status(status)
	res.StartedAt, res.FinishedAt = started, finished

	var indices []int
	if err := json.Unmarshal([]byte(slides), &indices); err != nil {
		return nil, fmt.Errorf("decode slides of run %s: %w", res.RunID, err)
	}
	for _, i := range indices {
		res.Slides = append(res.Slides, model.RenderedSlide{Index: i})
	}
	if err := json.Unmarshal([]byte(skipped), &res.Skipped); err != nil {
		return nil, fmt.Errorf("decode skipped of run %s: %w", res.RunID, err)
	}
	if len(res.Skipped) == 0 {
		res.Skipped = nil
	}
	if outline != "" {
		res.Outline = &model.Outline{}
		if err := json.Unmarshal([]byte(outline), res.Outline); err != nil {
			return nil, fmt.Errorf("decode outline of run %s: %w", res.RunID, err)
		}
	}
	return &res, nil
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
