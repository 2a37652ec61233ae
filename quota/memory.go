package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is an in-process Counter implementation.
type MemoryCounter struct {
	mu      sync.Mutex
	usage   map[string]int
	alerted map[string]time.Time

	now func() time.Time
}

// NewMemoryCounter creates an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		usage:   make(map[string]int),
		alerted: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Usage returns the minutes consumed in the given month.
func (c *MemoryCounter) Usage(_ context.Context, month string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage[month], nil
}

// Add increments the month's counter and returns the new total.
func (c *MemoryCounter) Add(_ context.Context, month string, minutes int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage[month] += minutes
	return c.usage[month], nil
}

// MarkAlerted records the alert marker with the given validity.
func (c *MemoryCounter) MarkAlerted(_ context.Context, month string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiry, ok := c.alerted[month]; ok && now.Before(expiry) {
		return false, nil
	}
	c.alerted[month] = now.Add(ttl)
	return true, nil
}

var _ Counter = (*MemoryCounter)(nil)
