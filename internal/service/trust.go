package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/domain/trust"
	"github.com/Strob0t/ModForge/internal/port/kv"
)

// ApprovedContentRecord is the breadcrumb that lets a later moderator
// removal be attributed back to a pipeline approval.
type ApprovedContentRecord struct {
	ContentID  string           `json:"content_id"`
	UserID     string           `json:"user_id"`
	Subreddit  string           `json:"subreddit"`
	Kind       content.ItemKind `json:"kind"`
	ApprovedAt time.Time        `json:"approved_at"`
}

// TrustStore maintains community-trust records, approved-content tracking,
// and the cached metadata trust score.
type TrustStore struct {
	kv          kv.Store
	keys        *Keys
	policy      trust.Policy
	trackingTTL time.Duration
	scoreTTL    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewTrustStore creates the trust service.
func NewTrustStore(store kv.Store, keys *Keys, policy trust.Policy, trackingTTL, scoreTTL time.Duration, logger *slog.Logger) *TrustStore {
	return &TrustStore{
		kv:          store,
		keys:        keys,
		policy:      policy,
		trackingTTL: trackingTTL,
		scoreTTL:    scoreTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// GetTrust evaluates the community-trust gate for one content kind.
func (t *TrustStore) GetTrust(ctx context.Context, userID, subreddit string, kind content.ItemKind) trust.Decision {
	record := t.load(ctx, userID, subreddit)
	return record.Decide(kind, t.policy, t.now().UTC())
}

// UpdateTrust records one moderation outcome in the per-kind counters.
// Concurrent updates for the same user may race; counters converge and the
// gate is threshold-based, so last-writer-wins is acceptable.
func (t *TrustStore) UpdateTrust(ctx context.Context, userID, subreddit string, action moderation.Action, kind content.ItemKind) error {
	record := t.load(ctx, userID, subreddit)
	record.ForKind(kind).Apply(action)
	now := t.now().UTC()
	if action == moderation.ActionApprove {
		record.LastActivity = now
	}
	record.LastCalculated = now
	return t.save(ctx, record)
}

// TrackApproved writes the 24h approved-content record.
func (t *TrustStore) TrackApproved(ctx context.Context, contentID, userID, subreddit string, kind content.ItemKind) error {
	rec := ApprovedContentRecord{
		ContentID:  contentID,
		UserID:     userID,
		Subreddit:  subreddit,
		Kind:       kind,
		ApprovedAt: t.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.kv.Set(ctx, t.keys.ApprovedTracking(contentID), data, t.trackingTTL)
}

// RetroactiveRemoval converts a tracked approval into a removal after a
// moderator removed the content. A missing record means the approval was not
// ours (or has aged out) and is a no-op.
func (t *TrustStore) RetroactiveRemoval(ctx context.Context, contentID string) error {
	key := t.keys.ApprovedTracking(contentID)
	data, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read tracking record: %w", err)
	}
	if !ok {
		return nil
	}
	var rec ApprovedContentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = t.kv.Delete(ctx, key)
		return nil
	}

	record := t.load(ctx, rec.UserID, rec.Subreddit)
	record.ForKind(rec.Kind).RetroactiveRemoval()
	record.LastCalculated = t.now().UTC()
	if err := t.save(ctx, record); err != nil {
		return err
	}

	_ = t.kv.Delete(ctx, key)
	// The mod action is a negative signal, so the cached score is stale.
	_ = t.kv.Delete(ctx, t.keys.TrustScore(rec.UserID, rec.Subreddit))

	t.logger.Info("retroactive removal applied",
		"content_id", contentID, "user_id", rec.UserID, "kind", rec.Kind)
	return nil
}

// Score returns the cached metadata trust score, computing it on miss from
// profile facts and the approval counters.
func (t *TrustStore) Score(ctx context.Context, p *profile.UserProfile, subreddit string) trust.Score {
	key := t.keys.TrustScore(p.UserID, subreddit)

	if data, ok, err := t.kv.Get(ctx, key); err == nil && ok {
		var s trust.Score
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	}

	record := t.load(ctx, p.UserID, subreddit)
	approved := record.Posts.Approved + record.Comments.Approved
	s := trust.ComputeScore(p, approved)

	if data, err := json.Marshal(s); err == nil {
		if err := t.kv.Set(ctx, key, data, t.scoreTTL); err != nil {
			t.logger.Warn("trust score cache write failed", "user_id", p.UserID, "error", err)
		}
	}
	return s
}

func (t *TrustStore) load(ctx context.Context, userID, subreddit string) *trust.CommunityTrust {
	record := &trust.CommunityTrust{UserID: userID, Subreddit: subreddit}

	data, ok, err := t.kv.Get(ctx, t.keys.CommunityTrust(userID, subreddit))
	if err != nil {
		t.logger.Warn("trust record read failed", "user_id", userID, "error", err)
		return record
	}
	if !ok {
		return record
	}
	if err := json.Unmarshal(data, record); err != nil {
		t.logger.Warn("trust record corrupt, starting fresh", "user_id", userID)
		return &trust.CommunityTrust{UserID: userID, Subreddit: subreddit}
	}
	return record
}

func (t *TrustStore) save(ctx context.Context, record *trust.CommunityTrust) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	// Trust records are persistent: no TTL.
	return t.kv.Set(ctx, t.keys.CommunityTrust(record.UserID, record.Subreddit), data, 0)
}
