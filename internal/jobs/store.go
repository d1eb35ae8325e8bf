package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrStaleJob signals an optimistic-concurrency conflict: the job was
	// modified after it was read. The caller drops its update and lets the
	// next tick work from fresh state.
	ErrStaleJob = errors.New("job was modified concurrently")
)

// Store is the persistence boundary for job records. It is the single source
// of truth: the queue holds no job state between ticks.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	// ListJobs returns all jobs in FIFO order (created_at, then id).
	ListJobs(ctx context.Context) ([]*Job, error)
	// UpdateJob overwrites the record only if its persisted updated_at
	// still equals expectedUpdatedAt, returning ErrStaleJob otherwise.
	UpdateJob(ctx context.Context, job *Job, expectedUpdatedAt time.Time) error
	DeleteJob(ctx context.Context, id string) error
}
