package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/port/database"
	"github.com/Strob0t/ModForge/internal/port/notifier"
)

// Maintenance runs the daily housekeeping pass: relational retention purge
// and the spend digest.
type Maintenance struct {
	store         database.Store
	notifier      notifier.Notifier
	retentionDays int
	digestOn      bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewMaintenance creates the housekeeping service. notifier may be nil.
func NewMaintenance(store database.Store, n notifier.Notifier, retentionDays int, digestOn bool, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		store:         store,
		notifier:      n,
		retentionDays: retentionDays,
		digestOn:      digestOn,
		logger:        logger,
		now:           time.Now,
	}
}

// Run starts the daily loop and blocks until the context is canceled.
func (m *Maintenance) Run(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs one purge-and-digest pass.
func (m *Maintenance) RunOnce(ctx context.Context) {
	m.purge(ctx)
	m.digest(ctx)
}

func (m *Maintenance) purge(ctx context.Context) {
	if m.retentionDays <= 0 {
		return
	}
	cutoff := m.now().UTC().AddDate(0, 0, -m.retentionDays)
	n, err := m.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		m.logger.Error("retention purge failed", "error", err)
		return
	}
	m.logger.Info("retention purge complete", "rows", n, "cutoff", cutoff)
}

// digest reports the last day's spend to the operator channel.
func (m *Maintenance) digest(ctx context.Context) {
	if !m.digestOn || m.notifier == nil {
		return
	}
	since := m.now().UTC().AddDate(0, 0, -1)
	summary, err := m.store.CostSummary(ctx, since)
	if err != nil {
		m.logger.Error("digest summary failed", "error", err)
		return
	}

	msg := fmt.Sprintf("Last 24h: %d LM calls, $%.4f spent (%d tokens in, %d tokens out).",
		summary.CallCount, summary.TotalCostUSD, summary.TotalTokensIn, summary.TotalTokensOut)
	err = m.notifier.Send(ctx, notifier.Notification{
		Title:   "ModForge daily digest",
		Message: msg,
		Level:   "info",
		Source:  "digest.daily",
	})
	if err != nil {
		m.logger.Warn("digest delivery failed", "error", err)
	}
}
