package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Strob0t/ModForge/internal/domain"
)

// Limiter is a sliding-window rate limiter shared by all callers of one
// external API. Acquire blocks until a slot frees or the context expires.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	stamps  []time.Time
	now     func() time.Time // for testing
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter allowing max calls per window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		now:     time.Now,
		sleepFn: sleepCtx,
	}
}

// Acquire blocks until a call slot is available, then claims it.
// Returns the context error if the wait is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait := l.tryClaim()
		if wait == 0 {
			return nil
		}
		if err := l.sleepFn(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns the number of calls currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

// tryClaim claims a slot if one is free, otherwise returns how long to wait
// until the oldest stamp leaves the window.
func (l *Limiter) tryClaim() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.stamps) < l.max {
		l.stamps = append(l.stamps, now)
		return 0
	}
	return l.stamps[0].Add(l.window).Sub(now)
}

// evict must be called with l.mu held.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retrySleep is swapped out in tests.
var retrySleep = sleepCtx

// WithRetry runs fn, retrying up to maxRetries times with exponential backoff
// (1s, 2s, 4s, ...) when the error is rate-limit class. Other errors return
// immediately.
func WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}
		backoff := time.Duration(1<<attempt) * time.Second
		if sleepErr := retrySleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
	}
}
