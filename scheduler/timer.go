package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/transcribed/logger"
)

// TimerScheduler dispatches tasks from in-process timers. Pending tasks are
// lost on restart; use the Redis queue when that matters.
type TimerScheduler struct {
	handler Handler
	log     *logger.Logger

	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

// NewTimerScheduler creates an in-process scheduler dispatching to handler.
func NewTimerScheduler(handler Handler, log *logger.Logger) *TimerScheduler {
	return &TimerScheduler{
		handler: handler,
		log:     log.WithComponent("scheduler"),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// ScheduleTranscribe arms a timer that invokes the handler after delay.
func (s *TimerScheduler) ScheduleTranscribe(_ context.Context, delay time.Duration, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return context.Canceled
	}

	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.handler(context.Background(), task)
	})
	s.timers[t] = struct{}{}

	s.log.Debug("task scheduled", logger.Fields(
		logger.FieldJobID, task.JobID,
		"delay_ms", delay.Milliseconds(),
	))
	return nil
}

// Stop cancels pending timers and waits for in-flight dispatches to finish.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

var _ Scheduler = (*TimerScheduler)(nil)
