package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore is the flight recorder database
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store for dbPath. The database is created and
// its schema initialised on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

// OpenSqliteStore returns a store for an existing database. Unlike
// NewSqliteStore it never creates one.
func OpenSqliteStore(dbPath string) (*SqliteStore, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening flight recorder: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("opening flight recorder: %s is a directory", dbPath)
	}
	return NewSqliteStore(dbPath), nil
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}

		// a single writer keeps WAL mode free of busy errors
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// StartRun inserts a new run and returns its id. config is stored as JSON
// unless it already is a string or byte slice.
func (s *SqliteStore) StartRun(ctx context.Context, variant, address string, config any) (runID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData = nullString(c)

		case []byte:
			configData = nullString(string(c))

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}
			configData = nullString(string(p))
		}
	}

	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, insertRunSQL, time.Now().UTC(), variant, address, configData)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	runID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return
}

// FinishRun stamps the run finished, with runErr as its failure if any
func (s *SqliteStore) FinishRun(ctx context.Context, runID int64, runErr error) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	var errText sql.NullString
	if runErr != nil {
		errText = nullString(runErr.Error())
	}

	result, err := db.ExecContext(ctx, finishRunSQL, time.Now().UTC(), errText, runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

func (s *SqliteStore) RecordStep(ctx context.Context, runID int64, step Step) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertStepSQL,
		runID,
		step.Name,
		step.Status,
		nullString(step.Error),
		step.StartedAt.UTC(),
		step.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("inserting step %s: %w", step.Name, err)
	}
	return nil
}

func (s *SqliteStore) RecordPosition(ctx context.Context, runID int64, sample PositionSample) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, insertPositionSQL,
		runID,
		sample.Timestamp.UTC(),
		sample.Latitude,
		sample.Longitude,
		sample.Altitude,
		sample.Roll,
		sample.Pitch,
		sample.Yaw,
	); err != nil {
		return fmt.Errorf("inserting position: %w", err)
	}
	return nil
}

// Runs returns every recorded run with its steps, oldest first
func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}

	for rows.Next() {
		var run Run
		var finished sql.NullTime
		var config, runErr sql.NullString
		if err = rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Variant, &run.Address, &config, &runErr, &run.Positions); err != nil {
			_ = rows.Close()
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		run.FinishedAt = fromNullTime(finished)
		run.Config = fromNullString(config)
		run.Error = fromNullString(runErr)
		runs = append(runs, &run)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		err = fmt.Errorf("iterating runs: %w", err)
		return
	}
	// the single connection must be released before querying steps
	if err = rows.Close(); err != nil {
		return
	}

	for _, run := range runs {
		if run.Steps, err = s.steps(ctx, db, run.ID); err != nil {
			return
		}
	}
	return
}

func (s *SqliteStore) steps(ctx context.Context, db *sql.DB, runID int64) (steps []Step, err error) {
	rows, err := db.QueryContext(ctx, selectStepsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying steps: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var step Step
		var stepErr sql.NullString
		if err = rows.Scan(&step.Name, &step.Status, &stepErr, &step.StartedAt, &step.FinishedAt); err != nil {
			err = fmt.Errorf("scanning step: %w", err)
			return
		}
		step.Error = stepErr.String
		steps = append(steps, step)
	}
	err = rows.Err()
	return
}

// Positions returns the position samples of a run in recording order
func (s *SqliteStore) Positions(ctx context.Context, runID int64) (samples []PositionSample, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectPositionsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying positions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p PositionSample
		if err = rows.Scan(&p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude, &p.Roll, &p.Pitch, &p.Yaw); err != nil {
			err = fmt.Errorf("scanning position: %w", err)
			return
		}
		samples = append(samples, p)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}
