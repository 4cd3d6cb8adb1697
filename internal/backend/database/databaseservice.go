package database

import "errors"

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

type DatabaseService interface {
	Close() error

	// CreateRun stores run and returns its generated id. CreatedAt is set
	// when left zero.
	CreateRun(run *Run) (string, error)
	GetRun(id string) (*Run, error)
	// ListRuns returns the newest runs first. A limit <= 0 returns all runs.
	ListRuns(limit int) ([]*Run, error)
	DeleteRun(id string) error
}
