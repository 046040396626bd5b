package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run record does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord is one pipeline invocation's terminal state, persisted for
// `kforge history`.
type RunRecord struct {
	// ID is the invocation run ID.
	ID string `json:"id"`

	// Entry is the entry script path.
	Entry string `json:"entry"`

	// Outcome is the terminal outcome string.
	Outcome string `json:"outcome"`

	// Stage is the terminal pipeline stage.
	Stage string `json:"stage"`

	// Documents is the number of documents that reached emit-ready state.
	Documents int `json:"documents"`

	// Diagnostics is the number of diagnostics produced.
	Diagnostics int `json:"diagnostics"`

	// Duration is the invocation wall-clock duration.
	Duration time.Duration `json:"duration"`

	// CreatedAt is when the invocation finished.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists run history.
type Store interface {
	// Init opens the store and applies pending migrations.
	Init(ctx context.Context) error

	// RecordRun persists one invocation's terminal state.
	RecordRun(ctx context.Context, rec *RunRecord) error

	// GetRun fetches one run by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Close releases the underlying resources.
	Close() error
}
