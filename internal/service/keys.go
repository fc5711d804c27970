// Package service implements the application services of the moderation
// engine: the decision pipeline and its supporting components.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/ModForge/internal/port/kv"
)

// Keys builds every KV key the engine touches. Both versions appear in every
// key, so bumping either invalidates the affected scope without deletes.
type Keys struct {
	codeVersion     int
	settingsVersion int
}

// NewKeys creates a key builder for the given version pair.
func NewKeys(codeVersion, settingsVersion int) *Keys {
	return &Keys{codeVersion: codeVersion, settingsVersion: settingsVersion}
}

func (k *Keys) prefix() string {
	return fmt.Sprintf("v%d:%d:", k.codeVersion, k.settingsVersion)
}

// User builds a user-scoped key.
func (k *Keys) User(userID string, parts ...string) string {
	return k.prefix() + "user:" + userID + ":" + strings.Join(parts, ":")
}

// Global builds a global-scoped key.
func (k *Keys) Global(parts ...string) string {
	return k.prefix() + "global:" + strings.Join(parts, ":")
}

// UserPrefix is the prefix of every key belonging to one user.
func (k *Keys) UserPrefix(userID string) string {
	return k.prefix() + "user:" + userID + ":"
}

func (k *Keys) Profile(userID string) string { return k.User(userID, "profile") }
func (k *Keys) History(userID string) string { return k.User(userID, "history") }

func (k *Keys) TrustScore(userID, subreddit string) string {
	return k.User(userID, "trustscore", subreddit)
}

func (k *Keys) CommunityTrust(userID, subreddit string) string {
	return k.User(userID, "trust", subreddit)
}

func (k *Keys) InFlight(userID string) string { return k.User(userID, "ai", "inflight") }
func (k *Keys) Analysis(userID string) string { return k.User(userID, "ai", "analysis") }

func (k *Keys) AnswerCache(fingerprint string) string {
	return k.Global("ai", "answers", fingerprint)
}

func (k *Keys) ApprovedTracking(contentID string) string {
	return k.Global("approved", "tracking", contentID)
}

func (k *Keys) RuleSet(subreddit string) string { return k.Global("rules", subreddit) }

func (k *Keys) CostDay(day string) string     { return k.Global("cost", "day", day) }
func (k *Keys) CostMonth(month string) string { return k.Global("cost", "month", month) }

func (k *Keys) CostDayProvider(day, provider string) string {
	return k.Global("cost", "day", day, provider)
}

func (k *Keys) CostMonthProvider(month, provider string) string {
	return k.Global("cost", "month", month, provider)
}

// BudgetAlert is the dedupe key for one (scope, period, percent) crossing.
func (k *Keys) BudgetAlert(scope, periodKey string, percent int) string {
	return k.Global("budget", "alert", scope, periodKey, fmt.Sprintf("%d", percent))
}

// TrackedUser marks a user as seen in a subreddit. The per-subreddit set of
// these keys is what subreddit-wide invalidation iterates.
func (k *Keys) TrackedUser(subreddit, userID string) string {
	return k.Global("tracked", subreddit, userID)
}

func (k *Keys) trackedPrefix(subreddit string) string {
	return k.Global("tracked", subreddit) + ":"
}

func (k *Keys) costPrefix() string { return k.Global("cost") + ":" }

// CacheAdmin performs wholesale cache invalidation over the KV substrate.
type CacheAdmin struct {
	kv     kv.Store
	keys   *Keys
	logger *slog.Logger
}

// NewCacheAdmin creates a cache invalidation helper.
func NewCacheAdmin(store kv.Store, keys *Keys, logger *slog.Logger) *CacheAdmin {
	return &CacheAdmin{kv: store, keys: keys, logger: logger}
}

// TrackUser records that a user has been processed in a subreddit, so
// ClearSubredditCache can find their keys later.
func (a *CacheAdmin) TrackUser(ctx context.Context, subreddit, userID string) {
	key := a.keys.TrackedUser(subreddit, userID)
	if err := a.kv.Set(ctx, key, []byte(userID), 30*24*time.Hour); err != nil {
		a.logger.Warn("track user failed", "user_id", userID, "error", err)
	}
}

// ClearUserCache deletes every key belonging to one user.
func (a *CacheAdmin) ClearUserCache(ctx context.Context, userID string) (int, error) {
	keys, err := a.kv.Keys(ctx, a.keys.UserPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("list user keys: %w", err)
	}
	return a.deleteAll(ctx, keys)
}

// ClearSubredditCache clears the cached state of every tracked user in the
// subreddit, the subreddit ruleset, and optionally the cost counters.
func (a *CacheAdmin) ClearSubredditCache(ctx context.Context, subreddit string, includeCost bool) (int, error) {
	tracked, err := a.kv.Keys(ctx, a.keys.trackedPrefix(subreddit))
	if err != nil {
		return 0, fmt.Errorf("list tracked users: %w", err)
	}

	total := 0
	for _, key := range tracked {
		userID, _, err := a.kv.Get(ctx, key)
		if err != nil {
			a.logger.Warn("read tracked user failed", "key", key, "error", err)
			continue
		}
		n, err := a.ClearUserCache(ctx, string(userID))
		if err != nil {
			return total, err
		}
		total += n
	}

	n, err := a.deleteAll(ctx, tracked)
	if err != nil {
		return total, err
	}
	total += n

	if err := a.kv.Delete(ctx, a.keys.RuleSet(subreddit)); err == nil {
		total++
	}

	if includeCost {
		costKeys, err := a.kv.Keys(ctx, a.keys.costPrefix())
		if err != nil {
			return total, fmt.Errorf("list cost keys: %w", err)
		}
		n, err := a.deleteAll(ctx, costKeys)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

func (a *CacheAdmin) deleteAll(ctx context.Context, keys []string) (int, error) {
	n := 0
	for _, key := range keys {
		if err := a.kv.Delete(ctx, key); err != nil {
			return n, fmt.Errorf("delete %s: %w", key, err)
		}
		n++
	}
	return n, nil
}
