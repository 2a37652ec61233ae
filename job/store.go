package job

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested job id is not tracked.
var ErrNotFound = errors.New("job: not found")

// Store is the durable record of job state keyed by job id.
//
// Update applies a read-modify-write atomically per job id; different jobs
// never contend with each other.
type Store interface {
	// Create stores a new job. The job's id must be unique.
	Create(ctx context.Context, j *Job) error

	// Get returns the job with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Update applies fn to the current job record and persists the result.
	// If fn returns an error nothing is written and the error is returned.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)

	// Delete removes the tracked job metadata. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error

	// Count returns the number of tracked jobs.
	Count(ctx context.Context) (int, error)

	// List returns up to limit jobs starting at offset, most recently
	// modified first, along with the total number of tracked jobs.
	List(ctx context.Context, offset, limit int) ([]*Job, int, error)
}
