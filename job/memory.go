package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation. Suitable for tests and
// single-instance deployments without Redis.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create stores a new job.
func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return fmt.Errorf("job: duplicate id %q", j.ID)
	}
	cp := *j
	cp.UpdatedAt = s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	s.jobs[j.ID] = &cp
	*j = cp
	return nil
}

// Get returns a copy of the job with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// Update applies fn to the stored job under the store lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = s.now()
	s.jobs[id] = &cp
	out := cp
	return &out, nil
}

// Delete removes the job. Unknown ids are a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// Count returns the number of tracked jobs.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

// List returns jobs most recently modified first.
func (s *MemoryStore) List(_ context.Context, offset, limit int) ([]*Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, k int) bool {
		return all[i].UpdatedAt.After(all[k].UpdatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

var _ Store = (*MemoryStore)(nil)
