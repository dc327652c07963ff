// Package limiter bounds the number of in-flight operations of a given class.
// The pipeline layers independent limiters: global remote API calls,
// per-processor sub-fetches, page fetches, and object store writes each get
// their own instance, since saturating the object store is a distinct failure
// mode from saturating the remote API.
package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter defines the interface for concurrency limiting implementations
type Limiter interface {
	// Acquire blocks until a slot is available or the context is done
	Acquire(ctx context.Context) error

	// Release returns a previously acquired slot
	Release()

	// Do runs fn within an acquired slot
	Do(ctx context.Context, fn func() error) error

	// GetStats returns limiter statistics
	GetStats() Stats
}

// Stats provides statistics about limiter usage for monitoring
type Stats struct {
	Limit         int           `json:"limit"`
	InFlight      int           `json:"in_flight"`
	Peak          int           `json:"peak"`
	TotalAcquired int64         `json:"total_acquired"`
	TotalWaitTime time.Duration `json:"total_wait_time"`
}

// ConcurrencyLimiter implements Limiter with a buffered-channel semaphore
type ConcurrencyLimiter struct {
	slots chan struct{}
	limit int

	// Stats
	totalAcquired int64
	totalWaitNs   int64
	inFlight      int
	peak          int
	mu            sync.Mutex
}

// New creates a concurrency limiter with the given number of slots.
// A limit below 1 is treated as 1.
func New(limit int) *ConcurrencyLimiter {
	if limit < 1 {
		limit = 1
	}
	return &ConcurrencyLimiter{
		slots: make(chan struct{}, limit),
		limit: limit,
	}
}

// Acquire blocks until a slot is available
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case l.slots <- struct{}{}:
		atomic.AddInt64(&l.totalAcquired, 1)
		atomic.AddInt64(&l.totalWaitNs, time.Since(start).Nanoseconds())

		l.mu.Lock()
		l.inFlight++
		if l.inFlight > l.peak {
			l.peak = l.inFlight
		}
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot
func (l *ConcurrencyLimiter) Release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()

	<-l.slots
}

// Do runs fn within an acquired slot, releasing it when fn returns
func (l *ConcurrencyLimiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// GetStats returns limiter statistics
func (l *ConcurrencyLimiter) GetStats() Stats {
	l.mu.Lock()
	inFlight := l.inFlight
	peak := l.peak
	l.mu.Unlock()

	return Stats{
		Limit:         l.limit,
		InFlight:      inFlight,
		Peak:          peak,
		TotalAcquired: atomic.LoadInt64(&l.totalAcquired),
		TotalWaitTime: time.Duration(atomic.LoadInt64(&l.totalWaitNs)),
	}
}
