package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain"
	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/port/database"
	"github.com/Strob0t/ModForge/internal/port/kv"
	"github.com/Strob0t/ModForge/internal/port/messagequeue"
)

// Spend counters are stored as integer micro-dollars so IncrBy stays exact.
const microUSD = 1_000_000

// alertThresholds are the budget crossings that emit one notification each
// per period.
var alertThresholds = []int{50, 75, 90}

// alertDedupeTTL outlives the daily period so a crossing alerts once.
const alertDedupeTTL = 48 * time.Hour

// Ledger tracks LM spend against daily and monthly limits. Counters live in
// the KV substrate so all instances share them; durable records go to the
// relational store for reporting.
type Ledger struct {
	kv        kv.Store
	keys      *Keys
	store     database.Store
	queue     messagequeue.Queue
	cfg       config.Budget
	subreddit string
	logger    *slog.Logger
	now       func() time.Time
}

// NewLedger creates the cost ledger.
func NewLedger(store kv.Store, keys *Keys, db database.Store, queue messagequeue.Queue, cfg config.Budget, subreddit string, logger *slog.Logger) *Ledger {
	return &Ledger{
		kv:        store,
		keys:      keys,
		store:     db,
		queue:     queue,
		cfg:       cfg,
		subreddit: subreddit,
		logger:    logger,
		now:       time.Now,
	}
}

func dayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// Check returns ErrBudgetExceeded when the estimated call cost would push
// daily or monthly spend past its limit. A zero limit disables that check.
func (l *Ledger) Check(ctx context.Context, estimatedUSD float64) error {
	now := l.now()

	daily, err := l.spent(ctx, l.keys.CostDay(dayKey(now)))
	if err != nil {
		return err
	}
	if l.cfg.DailyLimitUSD > 0 && daily+estimatedUSD > l.cfg.DailyLimitUSD {
		return domain.ErrBudgetExceeded
	}

	monthly, err := l.spent(ctx, l.keys.CostMonth(monthKey(now)))
	if err != nil {
		return err
	}
	if l.cfg.MonthlyLimitUSD > 0 && monthly+estimatedUSD > l.cfg.MonthlyLimitUSD {
		return domain.ErrBudgetExceeded
	}
	return nil
}

func (l *Ledger) spent(ctx context.Context, key string) (float64, error) {
	data, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var micro int64
	if err := json.Unmarshal(data, &micro); err != nil {
		return 0, nil
	}
	return float64(micro) / microUSD, nil
}

// Record accounts one LM call: counters, durable record, threshold alerts.
// Accounting failures are logged, never propagated; a lost record must not
// fail moderation.
func (l *Ledger) Record(ctx context.Context, rec cost.Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	micro := int64(rec.CostUSD * microUSD)
	day, month := dayKey(rec.Timestamp), monthKey(rec.Timestamp)

	// Period counters are keyed by date, so old periods simply stop being
	// read; stale keys disappear on the next settings version bump.
	dailyTotal := l.incr(ctx, l.keys.CostDay(day), micro)
	l.incr(ctx, l.keys.CostDayProvider(day, rec.Provider), micro)
	monthlyTotal := l.incr(ctx, l.keys.CostMonth(month), micro)
	l.incr(ctx, l.keys.CostMonthProvider(month, rec.Provider), micro)

	if err := l.store.InsertCostRecord(ctx, rec); err != nil {
		l.logger.Warn("cost record insert failed", "error", err)
	}

	if l.cfg.AlertsEnabled {
		l.checkThresholds(ctx, "daily", day, float64(dailyTotal)/microUSD, l.cfg.DailyLimitUSD)
		l.checkThresholds(ctx, "monthly", month, float64(monthlyTotal)/microUSD, l.cfg.MonthlyLimitUSD)
	}
}

func (l *Ledger) incr(ctx context.Context, key string, delta int64) int64 {
	total, err := l.kv.IncrBy(ctx, key, delta)
	if err != nil {
		l.logger.Warn("cost counter increment failed", "key", key, "error", err)
		return 0
	}
	return total
}

// checkThresholds emits one alert per (scope, period, threshold) crossing,
// deduped through SetNX.
func (l *Ledger) checkThresholds(ctx context.Context, scope, periodKey string, spent, limit float64) {
	if limit <= 0 || spent <= 0 {
		return
	}
	percent := int(spent / limit * 100)

	for _, threshold := range alertThresholds {
		if percent < threshold {
			continue
		}
		won, err := l.kv.SetNX(ctx, l.keys.BudgetAlert(scope, periodKey, threshold), []byte("1"), alertDedupeTTL)
		if err != nil || !won {
			continue
		}
		l.publishAlert(ctx, scope, periodKey, threshold, spent, limit)
	}
}

func (l *Ledger) publishAlert(ctx context.Context, scope, periodKey string, percent int, spent, limit float64) {
	payload := messagequeue.BudgetAlertPayload{
		Scope:      scope,
		Percent:    percent,
		SpentUSD:   spent,
		LimitUSD:   limit,
		PeriodKey:  periodKey,
		Subreddit:  l.subreddit,
		OccurredAt: l.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := l.queue.Publish(ctx, messagequeue.SubjectBudgetAlert, data); err != nil {
		l.logger.Warn("budget alert publish failed", "scope", scope, "percent", percent, "error", err)
		return
	}
	l.logger.Info("budget threshold crossed",
		"scope", scope, "percent", percent, "spent_usd", spent, "limit_usd", limit)
}
