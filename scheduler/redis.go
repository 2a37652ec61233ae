package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/skillsenselab/transcribed/logger"
)

const (
	scheduleKey = "asr:schedule"

	defaultPollInterval = 500 * time.Millisecond
)

// envelope wraps a task with a nonce so identical payloads scheduled twice
// remain distinct sorted-set members.
type envelope struct {
	Nonce string `json:"nonce"`
	Task  Task   `json:"task"`
}

// RedisScheduler is a Redis sorted-set delayed queue. Tasks are stored with
// their ready-time as score; a polling dispatcher claims due tasks with ZREM
// so exactly one dispatcher instance wins each task, while crashes before
// completion surface as redelivery on rerun (at-least-once overall).
type RedisScheduler struct {
	client  *goredis.Client
	handler Handler
	log     *logger.Logger

	pollInterval time.Duration
	now          func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRedisScheduler creates a Redis-backed scheduler dispatching to handler.
func NewRedisScheduler(client *goredis.Client, handler Handler, log *logger.Logger) *RedisScheduler {
	return &RedisScheduler{
		client:       client,
		handler:      handler,
		log:          log.WithComponent("scheduler"),
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// ScheduleTranscribe enqueues the task with its ready-time as score.
func (s *RedisScheduler) ScheduleTranscribe(ctx context.Context, delay time.Duration, task Task) error {
	data, err := json.Marshal(envelope{Nonce: uuid.NewString(), Task: task})
	if err != nil {
		return fmt.Errorf("scheduler: marshal task: %w", err)
	}
	readyAt := s.now().Add(delay)
	if err := s.client.ZAdd(ctx, scheduleKey, goredis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("scheduler: enqueue: %w", err)
	}
	s.log.Debug("task scheduled", logger.Fields(
		logger.FieldJobID, task.JobID,
		"delay_ms", delay.Milliseconds(),
	))
	return nil
}

// Start launches the polling dispatcher.
func (s *RedisScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.drainDue(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for in-flight dispatches to finish.
func (s *RedisScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.wg.Wait()
}

// drainDue claims and dispatches every task whose ready-time has passed.
func (s *RedisScheduler) drainDue(ctx context.Context) {
	nowMilli := strconv.FormatInt(s.now().UnixMilli(), 10)
	members, err := s.client.ZRangeByScore(ctx, scheduleKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: nowMilli,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("poll failed", logger.ErrorFields("drain", err))
		}
		return
	}

	for _, member := range members {
		removed, err := s.client.ZRem(ctx, scheduleKey, member).Result()
		if err != nil {
			s.log.Error("claim failed", logger.ErrorFields("zrem", err))
			continue
		}
		if removed == 0 {
			// Another dispatcher instance claimed it first.
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			s.log.Error("dropping malformed task", logger.ErrorFields("unmarshal", err))
			continue
		}

		s.wg.Add(1)
		go func(task Task) {
			defer s.wg.Done()
			s.handler(context.Background(), task)
		}(env.Task)
	}
}

var _ Scheduler = (*RedisScheduler)(nil)
