package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

// NewSQLiteDatabase opens the database and creates the runs schema if it is
// missing
func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: opens a separate database
	if strings.Contains(connectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return s, nil
}

func (s *SQLiteDatabase) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		input_sha256 TEXT NOT NULL,
		plugins TEXT NOT NULL,
		config TEXT NOT NULL,
		output_path TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) CreateRun(run *Run) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run cannot be nil")
	}
	id := uuid.NewString()

	plugins, err := json.Marshal(run.Plugins)
	if err != nil {
		return "", fmt.Errorf("failed to encode plugins: %w", err)
	}
	config := run.Config
	if len(config) == 0 {
		config = json.RawMessage("null")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err = s.db.Exec(`INSERT INTO runs
		(id, input_path, input_sha256, plugins, config, output_path, width, height, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.InputPath, run.InputSHA256, string(plugins), string(config), run.OutputPath,
		run.Width, run.Height, run.DurationMS, run.CreatedAt.UnixNano())
	if err != nil {
		return "", err
	}

	run.ID = id
	return id, nil
}

const runColumns = `id, input_path, input_sha256, plugins, config, output_path, width, height, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		plugins   string
		config    string
		createdAt int64
	)
	if err := row.Scan(&run.ID, &run.InputPath, &run.InputSHA256, &plugins, &config,
		&run.OutputPath, &run.Width, &run.Height, &run.DurationMS, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(plugins), &run.Plugins); err != nil {
		return nil, fmt.Errorf("failed to decode plugins of run %s: %w", run.ID, err)
	}
	run.Config = json.RawMessage(config)
	run.CreatedAt = time.Unix(0, createdAt)
	return &run, nil
}

func (s *SQLiteDatabase) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteDatabase) DeleteRun(id string) error {
	result, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
