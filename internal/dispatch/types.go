package dispatch

import (
	"errors"
	"time"
)

var (
	ErrStopped = errors.New("dispatch stopped")
	// ErrQueueFull is returned when a due job cannot be queued; the sweeper
	// picks the reminder up again on its next pass.
	ErrQueueFull = errors.New("dispatch queue full")
)

// RetryPolicy bounds delivery attempts for one due job.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Backoff     time.Duration // delay before the second attempt; doubles after
	MaxBackoff  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Minute
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 15 * time.Minute
	}
	return p
}

// backoffDelay returns the pause after the given failed attempt (1-based):
// Backoff, 2*Backoff, 4*Backoff, ... capped at MaxBackoff.
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Config controls the dispatch service.
type Config struct {
	Workers      int
	QueueSize    int
	Retry        RetryPolicy
	SweepEvery   time.Duration // period of the durable re-arm scan
	SweepHorizon time.Duration // how far ahead of now the scan arms timers
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	c.Retry = c.Retry.withDefaults()
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Minute
	}
	if c.SweepHorizon <= 0 {
		c.SweepHorizon = 5 * time.Minute
	}
	return c
}

// Job is the ephemeral unit handed to workers when a reminder comes due.
// It references the reminder; the worker re-fetches the row before acting,
// so a job's existence never implies the reminder is still pending.
type Job struct {
	ReminderID string
	UserID     int64
	Channel    string
	Task       string
	Due        time.Time
}
