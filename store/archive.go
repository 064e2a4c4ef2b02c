package store

import (
	"bytes"
	"context"
	"database/sql"
	goerrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/syngen/errors"
	"github.com/wippyai/syngen/props"
)

// Run is one archived simulation run.
type Run struct {
	CreatedAt   time.Time
	Report      *props.Map
	Network     string
	Environment string
	ID          uuid.UUID
}

// Archive is a SQLite-backed run report archive.
type Archive struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// NewArchive returns an archive at path. Call Init before use.
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// Init opens the database and creates the schema. Calling it again is a
// no-op.
func (a *Archive) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.path == "" {
		return errors.InvalidInput(errors.PhaseStore, "archive path is required")
	}
	if a.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", a.path)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "open "+a.path)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "open "+a.path)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "create schema")
	}

	a.db = db
	Logger().Debug("archive opened", zap.String("path", a.path))
	return nil
}

// Save stores a run, replacing any run with the same ID. A zero ID is
// replaced by a fresh one and a zero CreatedAt by the current time.
func (a *Archive) Save(ctx context.Context, run Run) (uuid.UUID, error) {
	db, err := a.getDB()
	if err != nil {
		return uuid.Nil, err
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	report := run.Report
	if report == nil {
		report = props.NewMap()
	}
	payload, err := report.MarshalJSON()
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.PhaseStore, errors.KindUnsupported, err, "encode report")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, network, environment, created_at, report)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network = excluded.network,
			environment = excluded.environment,
			created_at = excluded.created_at,
			report = excluded.report
	`, run.ID.String(), run.Network, run.Environment, run.CreatedAt.UnixNano(), payload)
	if err != nil {
		return uuid.Nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "save run "+run.ID.String())
	}
	Logger().Debug("run archived",
		zap.Stringer("id", run.ID),
		zap.String("network", run.Network),
		zap.Int("bytes", len(payload)))
	return run.ID, nil
}

// Get returns the run with the given ID, or false if there is none.
func (a *Archive) Get(ctx context.Context, id uuid.UUID) (Run, bool, error) {
	db, err := a.getDB()
	if err != nil {
		return Run{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, network, environment, created_at, report
		FROM runs WHERE id = ?
	`, id.String())
	run, err := scanRun(row)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	return run, true, nil
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (a *Archive) List(ctx context.Context, limit int) ([]Run, error) {
	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, network, environment, created_at, report
		FROM runs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "list runs")
	}
	return runs, nil
}

// Delete removes a run and reports whether it existed.
func (a *Archive) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db, err := a.getDB()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id.String())
	if err != nil {
		return false, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "delete run "+id.String())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "delete run "+id.String())
	}
	return n > 0, nil
}

// Close closes the database. The archive may be initialized again.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Archive) getDB() (*sql.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.NotInitialized(errors.PhaseStore, "archive")
	}
	return a.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		id      string
		created int64
		payload []byte
		run     Run
	)
	if err := s.Scan(&id, &run.Network, &run.Environment, &created, &payload); err != nil {
		return Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Run{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "run id "+id)
	}
	run.ID = parsed
	run.CreatedAt = time.Unix(0, created).UTC()

	v, err := props.DecodeJSON(bytes.NewReader(payload))
	if err != nil {
		return Run{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "decode report "+id)
	}
	run.Report = v.Map()
	if run.Report == nil {
		run.Report = props.NewMap()
	}
	return run, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			network TEXT NOT NULL,
			environment TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			report BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
	`)
	return err
}
