package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/port/cache"
	"github.com/Strob0t/ModForge/internal/port/platform"
)

// historyWindow is how many recent items the history analyzer examines.
const historyWindow = 50

// datingSubs are counted separately in history metrics for rules that gate
// promotional cross-posting.
var datingSubs = map[string]bool{
	"r4r": true, "dating": true, "dating_advice": true, "dirtyr4r": true,
	"onlyfanspromo": true, "sugarbaby": true,
}

// Profiles fetches and caches user account facts and recent activity.
type Profiles struct {
	platform   platform.Client
	cache      cache.Cache
	keys       *Keys
	profileTTL time.Duration
	historyTTL time.Duration
	logger     *slog.Logger
}

// NewProfiles creates the profile/history fetcher.
func NewProfiles(client platform.Client, c cache.Cache, keys *Keys, profileTTL, historyTTL time.Duration, logger *slog.Logger) *Profiles {
	return &Profiles{
		platform:   client,
		cache:      c,
		keys:       keys,
		profileTTL: profileTTL,
		historyTTL: historyTTL,
		logger:     logger,
	}
}

// Fetch loads the profile and history for a user concurrently. A history
// failure is tolerated (metrics degrade to empty); a profile failure is not.
func (p *Profiles) Fetch(ctx context.Context, userID, subreddit string) (*profile.UserProfile, *profile.PostHistory, error) {
	var (
		prof *profile.UserProfile
		hist *profile.PostHistory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prof, err = p.Profile(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		hist, err = p.History(gctx, userID, subreddit)
		if err != nil {
			p.logger.Warn("history fetch failed, continuing without", "user_id", userID, "error", err)
			hist = profile.NewPostHistory(userID, nil, nil, nil)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return prof, hist, nil
}

// Profile returns the cached profile, fetching on miss.
func (p *Profiles) Profile(ctx context.Context, userID string) (*profile.UserProfile, error) {
	key := p.keys.Profile(userID)

	if data, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		var prof profile.UserProfile
		if err := json.Unmarshal(data, &prof); err == nil {
			return &prof, nil
		}
	}

	prof, err := p.platform.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	prof.FetchedAt = time.Now().UTC()

	p.store(ctx, key, prof, p.profileTTL)
	return prof, nil
}

// History returns the cached activity window, fetching on miss.
func (p *Profiles) History(ctx context.Context, userID, subreddit string) (*profile.PostHistory, error) {
	key := p.keys.History(userID)

	if data, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		var hist profile.PostHistory
		if err := json.Unmarshal(data, &hist); err == nil {
			return &hist, nil
		}
	}

	items, err := p.platform.GetUserContent(ctx, userID, platform.ContentQuery{Limit: historyWindow})
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	targetSubs := map[string]bool{strings.ToLower(subreddit): true}
	hist := profile.NewPostHistory(userID, items, targetSubs, datingSubs)

	p.store(ctx, key, hist, p.historyTTL)
	return hist, nil
}

func (p *Profiles) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, key, data, ttl); err != nil {
		p.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
