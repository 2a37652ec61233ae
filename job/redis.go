package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "asr:job:"
	jobIndexKey  = "asr:jobs"
)

// RedisStore is a Redis-backed Store. Job records are stored as JSON with a
// sorted-set index keyed by last-modified time for listing.
type RedisStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewRedisStore creates a job store backed by the given Redis client.
func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func jobKey(id string) string { return jobKeyPrefix + id }

// Create stores a new job record.
func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	now := s.now()
	j.UpdatedAt = now
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("job: marshal %q: %w", j.ID, err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("job: create %q: %w", j.ID, err)
	}
	if !ok {
		return fmt.Errorf("job: duplicate id %q", j.ID)
	}

	if err := s.client.ZAdd(ctx, jobIndexKey, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: j.ID,
	}).Err(); err != nil {
		return fmt.Errorf("job: index %q: %w", j.ID, err)
	}
	return nil
}

// Get returns the job with the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("job: get %q: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("job: unmarshal %q: %w", id, err)
	}
	return &j, nil
}

// Update applies fn inside a WATCH transaction so concurrent writers to the
// same id cannot lose updates.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	var updated *Job
	key := jobKey(id)

	txn := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return fmt.Errorf("job: unmarshal %q: %w", id, err)
		}
		if err := fn(&j); err != nil {
			return err
		}
		j.UpdatedAt = s.now()

		data, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("job: marshal %q: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, jobIndexKey, goredis.Z{
				Score:  float64(j.UpdatedAt.UnixNano()),
				Member: j.ID,
			})
			return nil
		})
		if err != nil {
			return err
		}
		updated = &j
		return nil
	}

	// Retry a few times on WATCH conflicts.
	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("job: update %q: too many conflicts", id)
}

// Delete removes the job record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("job: delete %q: %w", id, err)
	}
	if err := s.client.ZRem(ctx, jobIndexKey, id).Err(); err != nil {
		return fmt.Errorf("job: unindex %q: %w", id, err)
	}
	return nil
}

// Count returns the number of tracked jobs.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, jobIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("job: count: %w", err)
	}
	return int(n), nil
}

// List returns jobs most recently modified first.
func (s *RedisStore) List(ctx context.Context, offset, limit int) ([]*Job, int, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if offset >= total {
		return nil, total, nil
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, jobIndexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("job: list: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Record deleted between index read and fetch.
				continue
			}
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, total, nil
}

var _ Store = (*RedisStore)(nil)
