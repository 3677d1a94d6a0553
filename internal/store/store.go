// Package store records every normalize, visualize, clip and export
// invocation in a small SQLite ledger.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("store: run not found")

// RunKind names the command that produced a run.
type RunKind string

// Run kinds.
const (
	KindNormalize  RunKind = "normalize"
	KindVisualize  RunKind = "visualize"
	KindRasterClip RunKind = "raster_clip"
	KindExport     RunKind = "export"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded invocation.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Status    RunStatus       `json:"status"`
	Input     string          `json:"input"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   RunKind   `json:"kind,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store persists runs.
type Store interface {
	CreateRun(ctx context.Context, kind RunKind, input string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary any) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Track creates a run, calls fn and records its outcome. fn's summary is
// stored as JSON on success; its error is recorded and returned otherwise.
func Track(ctx context.Context, s Store, kind RunKind, input string, fn func() (any, error)) (*Run, error) {
	run, err := s.CreateRun(ctx, kind, input)
	if err != nil {
		return nil, err
	}
	summary, fnErr := fn()
	if fnErr != nil {
		// The run outcome is best effort; fn's error is what the caller needs.
		_ = s.FailRun(context.WithoutCancel(ctx), run.ID, fnErr)
		return run, fnErr
	}
	if err := s.CompleteRun(ctx, run.ID, summary); err != nil {
		return run, err
	}
	return s.GetRun(ctx, run.ID)
}
