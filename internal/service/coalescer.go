package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/ai"
	"github.com/Strob0t/ModForge/internal/port/kv"
)

// InFlightRequest is the lock value recording who is running the LM analysis.
type InFlightRequest struct {
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Coalescer guarantees at most one concurrent LM analysis per user across
// all engine instances, using an atomic set-if-absent lock in the KV
// substrate. KV failures degrade to non-coalesced operation rather than
// blocking moderation.
type Coalescer struct {
	kv      kv.Store
	keys    *Keys
	lockTTL time.Duration
	maxWait time.Duration
	logger  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoalescer creates the single-flight coordinator.
func NewCoalescer(store kv.Store, keys *Keys, lockTTL, maxWait time.Duration, logger *slog.Logger) *Coalescer {
	return &Coalescer{
		kv:      store,
		keys:    keys,
		lockTTL: lockTTL,
		maxWait: maxWait,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AcquireLock attempts to become the single in-flight analysis for a user.
// Returns false when another request holds the lock or the KV store errors.
func (c *Coalescer) AcquireLock(ctx context.Context, userID, correlationID string) bool {
	now := c.now().UTC()
	req := InFlightRequest{
		UserID:        userID,
		CorrelationID: correlationID,
		StartedAt:     now,
		ExpiresAt:     now.Add(c.lockTTL),
	}
	value, err := json.Marshal(req)
	if err != nil {
		return false
	}

	won, err := c.kv.SetNX(ctx, c.keys.InFlight(userID), value, c.lockTTL)
	if err != nil {
		c.logger.Warn("inflight lock acquire failed", "user_id", userID, "error", err)
		return false
	}
	return won
}

// ReleaseLock releases the in-flight lock. Safe to call when not held.
func (c *Coalescer) ReleaseLock(ctx context.Context, userID string) {
	if err := c.kv.Delete(ctx, c.keys.InFlight(userID)); err != nil {
		c.logger.Warn("inflight lock release failed", "user_id", userID, "error", err)
	}
}

// GetInFlightRequest reads the current lock holder. A corrupt stored value
// is deleted and reported as absent.
func (c *Coalescer) GetInFlightRequest(ctx context.Context, userID string) *InFlightRequest {
	data, ok, err := c.kv.Get(ctx, c.keys.InFlight(userID))
	if err != nil || !ok {
		return nil
	}
	var req InFlightRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("corrupt inflight record, deleting", "user_id", userID)
		_ = c.kv.Delete(ctx, c.keys.InFlight(userID))
		return nil
	}
	return &req
}

// WaitForResult polls the per-user analysis key until the lock holder writes
// a result or the wait budget runs out. Backoff starts at 500ms and grows
// 1.5x up to 1s.
func (c *Coalescer) WaitForResult(ctx context.Context, userID string) *ai.BatchResult {
	deadline := c.now().Add(c.maxWait)
	backoff := 500 * time.Millisecond

	for c.now().Before(deadline) {
		if err := c.sleep(ctx, backoff); err != nil {
			return nil
		}

		data, ok, err := c.kv.Get(ctx, c.keys.Analysis(userID))
		if err == nil && ok {
			var result ai.BatchResult
			if err := json.Unmarshal(data, &result); err == nil {
				return &result
			}
		}

		backoff = backoff * 3 / 2
		if backoff > time.Second {
			backoff = time.Second
		}
	}
	return nil
}
