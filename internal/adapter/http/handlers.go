package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/database"
	"github.com/Strob0t/ModForge/internal/port/messagequeue"
	"github.com/Strob0t/ModForge/internal/resilience"
)

// maxAuditPage caps audit listing page size.
const maxAuditPage = 200

// CachePurger invalidates cached moderation state, typically after a
// settings version bump.
type CachePurger interface {
	ClearUserCache(ctx context.Context, userID string) (int, error)
	ClearSubredditCache(ctx context.Context, subreddit string, includeCost bool) (int, error)
}

// Handlers holds the dependencies of the operational endpoints.
type Handlers struct {
	cfg     *config.Config
	store   database.Store
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	cache   CachePurger
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, store database.Store, queue messagequeue.Queue, breaker *resilience.Breaker, cache CachePurger) *Handlers {
	return &Handlers{cfg: cfg, store: store, queue: queue, breaker: breaker, cache: cache}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the runtime state an operator cares about.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"subreddit":        h.cfg.Community.Subreddit,
		"dry_run":          h.cfg.DryRun.Enabled,
		"settings_version": h.cfg.Cache.SettingsVersion,
		"code_version":     config.CodeVersion,
		"nats_connected":   h.queue.IsConnected(),
		"breaker_state":    h.breaker.State(),
	})
}

// ListAudit returns recent audit entries, filterable by user, action, and window.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.AuditFilter{
		Subreddit: h.cfg.Community.Subreddit,
		UserID:    q.Get("user_id"),
		Limit:     maxAuditPage,
	}
	if action := q.Get("action"); action != "" {
		filter.Action = moderation.ParseAction(action)
	}
	filter.Since = time.Now().AddDate(0, 0, -7)
	if days := q.Get("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		filter.Since = time.Now().AddDate(0, 0, -n)
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 || n > maxAuditPage {
			writeError(w, http.StatusBadRequest, "limit must be in 1..200")
			return
		}
		filter.Limit = n
	}

	entries, err := h.store.ListAuditEntries(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list audit entries failed")
		return
	}
	if entries == nil {
		entries = []moderation.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// CostReport returns aggregate and per-provider spend for a window.
func (h *Handlers) CostReport(w http.ResponseWriter, r *http.Request) {
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	since := time.Now().AddDate(0, 0, -days)

	summary, err := h.store.CostSummary(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cost summary failed")
		return
	}
	byProvider, err := h.store.CostByProvider(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cost breakdown failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":       since,
		"summary":     summary,
		"by_provider": byProvider,
	})
}

// PurgeCache invalidates cached state. With user_id it clears one user;
// without, it clears the whole subreddit (include_cost=true also resets the
// cost counters).
func (h *Handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if userID := q.Get("user_id"); userID != "" {
		n, err := h.cache.ClearUserCache(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "clear user cache failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scope": "user", "user_id": userID, "deleted": n})
		return
	}

	includeCost := q.Get("include_cost") == "true"
	n, err := h.cache.ClearSubredditCache(r.Context(), h.cfg.Community.Subreddit, includeCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "clear subreddit cache failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":        "subreddit",
		"subreddit":    h.cfg.Community.Subreddit,
		"include_cost": includeCost,
		"deleted":      n,
	})
}
