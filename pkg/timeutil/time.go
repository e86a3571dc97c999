package timeutil

import (
	"sync"
	"time"
)

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ToDBPrecision truncates to the microsecond resolution of PostgreSQL timestamptz
// so that in-memory and persisted orderings agree
func ToDBPrecision(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ParseRFC3339 parses an RFC 3339 timestamp and returns a UTC time
func ParseRFC3339(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// SystemClock reads the wall clock at database precision
type SystemClock struct{}

// Now returns the current UTC time truncated to microseconds
func (SystemClock) Now() time.Time {
	return ToDBPrecision(time.Now())
}

// StepClock is a deterministic clock for tests.
// Every call returns the current value and then advances it by Step.
// A zero Step returns the same instant on every call.
type StepClock struct {
	mu      sync.Mutex
	current time.Time
	Step    time.Duration
}

// NewStepClock creates a clock starting at start
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{current: ToDBPrecision(start), Step: step}
}

// Now returns the clock value and advances it
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.Step)
	return now
}

// Set moves the clock to t
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ToDBPrecision(t)
}
