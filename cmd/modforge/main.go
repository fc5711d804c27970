package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strob0t/ModForge/internal/adapter/anthropic"
	mfhttp "github.com/Strob0t/ModForge/internal/adapter/http"
	"github.com/Strob0t/ModForge/internal/adapter/modmail"
	mfnats "github.com/Strob0t/ModForge/internal/adapter/nats"
	"github.com/Strob0t/ModForge/internal/adapter/natskv"
	"github.com/Strob0t/ModForge/internal/adapter/openai"
	mfotel "github.com/Strob0t/ModForge/internal/adapter/otel"
	"github.com/Strob0t/ModForge/internal/adapter/postgres"
	"github.com/Strob0t/ModForge/internal/adapter/reddit"
	"github.com/Strob0t/ModForge/internal/adapter/ristretto"
	"github.com/Strob0t/ModForge/internal/adapter/tiered"
	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/domain/rules"
	"github.com/Strob0t/ModForge/internal/domain/trust"
	"github.com/Strob0t/ModForge/internal/logger"
	"github.com/Strob0t/ModForge/internal/port/llm"
	"github.com/Strob0t/ModForge/internal/port/messagequeue"
	"github.com/Strob0t/ModForge/internal/port/notifier"
	"github.com/Strob0t/ModForge/internal/resilience"
	"github.com/Strob0t/ModForge/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"subreddit", cfg.Community.Subreddit,
		"dry_run", cfg.DryRun.Enabled,
		"settings_version", cfg.Cache.SettingsVersion,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	// PostgreSQL: audit log and cost ledger persistence.
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	store := postgres.NewStore(pool)

	// NATS: event stream plus the shared KV substrate.
	queue, err := mfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	bucket, err := natskv.EnsureBucket(ctx, queue.JetStream(), cfg.NATS.KVBucket)
	if err != nil {
		return fmt.Errorf("nats kv: %w", err)
	}
	kvStore := natskv.New(bucket)

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	readCache := tiered.New(l1, kvStore, cfg.Cache.L1TTL)

	// Telemetry.
	shutdownMeter, err := mfotel.InitMeter(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := mfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Host platform ---

	limiter := resilience.NewLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	redditClient := reddit.NewClient(cfg.Reddit.Token, cfg.Reddit.UserAgent,
		reddit.WithLimiter(limiter),
		reddit.WithBreaker(breaker),
		reddit.WithMaxRetries(cfg.Rate.MaxRetries),
	)

	// --- Services ---

	keys := service.NewKeys(config.CodeVersion, cfg.Cache.SettingsVersion)

	trustStore := service.NewTrustStore(kvStore, keys, trust.Policy{
		MinSubmissions:  cfg.Trust.MinSubmissions,
		MinApprovalRate: cfg.Trust.MinApprovalRate,
		DecayPerMonth:   cfg.Trust.DecayPerMonth,
	}, cfg.Cache.TrackingTTL, cfg.Cache.TrustScoreTTL, log)

	ledger := service.NewLedger(kvStore, keys, store, queue, cfg.Budget, cfg.Community.Subreddit, log)
	coalescer := service.NewCoalescer(kvStore, keys, cfg.Cache.InFlightTTL, cfg.Cache.CoalesceWait, log)
	batcher := service.NewBatcher(kvStore, keys, coalescer, ledger,
		buildProvider(cfg.LLM.Primary, cfg.LLM.Timeout),
		buildProvider(cfg.LLM.Fallback, cfg.LLM.Timeout),
		cost.DefaultPrices,
		cfg.LLM.Timeout, cfg.LLM.MaxTokens,
		cfg.Cache.AnswerBaseTTL, cfg.Cache.AnswerMaxTTL, log)

	cacheAdmin := service.NewCacheAdmin(kvStore, keys, log)

	pipeline := service.NewPipeline(cfg,
		service.NewProfiles(redditClient, readCache, keys, cfg.Cache.ProfileTTL, cfg.Cache.HistoryTTL, log),
		trustStore,
		service.NewClassifier(openai.NewModeration(cfg.Classifier.APIKey, cfg.Classifier.Timeout), cfg.Classifier, log),
		service.NewSettings(readCache, keys, cfg.RuleEngine.RulesJSON, log),
		rules.NewEngine(log),
		batcher,
		service.NewExecutor(redditClient, cfg.DryRun.Enabled, log),
		service.NewAudit(store, log),
		cacheAdmin,
		redditClient, metrics, log)

	notify := modmail.NewNotifier(cfg.Reddit.Token, cfg.Reddit.UserAgent, cfg.Notify.Recipients)

	// --- Subscribers ---

	for _, subject := range []string{messagequeue.SubjectPostSubmit, messagequeue.SubjectCommentSubmit} {
		cancel, err := queue.Subscribe(ctx, subject, pipeline.HandleEventMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer cancel()
	}

	cancelMod, err := queue.Subscribe(ctx, messagequeue.SubjectModAction, pipeline.HandleModActionMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messagequeue.SubjectModAction, err)
	}
	defer cancelMod()

	if cfg.Notify.RealtimeOn {
		cancelAlerts, err := queue.Subscribe(ctx, messagequeue.SubjectBudgetAlert, budgetAlertRelay(notify))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", messagequeue.SubjectBudgetAlert, err)
		}
		defer cancelAlerts()
	}

	maint := service.NewMaintenance(store, notify, cfg.Postgres.RetentionDays, cfg.Notify.DigestOn, log)
	go maint.Run(ctx)

	// --- HTTP ---

	handlers := mfhttp.NewHandlers(cfg, store, queue, breaker, cacheAdmin)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(mfhttp.NewRouter(handlers), "modforge.http"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown failed", "error", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}
	return nil
}

// buildProvider constructs an LM client from one provider slot. An empty or
// unknown kind leaves the slot unused.
func buildProvider(p config.Provider, timeout time.Duration) llm.Provider {
	switch p.Kind {
	case "claude":
		return anthropic.NewClient(p.APIKey, p.Model, p.BaseURL, timeout)
	case "openai":
		return openai.NewClient("openai", p.APIKey, p.Model, "", timeout)
	case "compatible":
		return openai.NewClient("compatible", p.APIKey, p.Model, p.BaseURL, timeout)
	}
	return nil
}

// budgetAlertRelay forwards notify.budget messages to the operator channel.
func budgetAlertRelay(notify notifier.Notifier) messagequeue.Handler {
	return func(ctx context.Context, _ string, data []byte) error {
		var alert messagequeue.BudgetAlertPayload
		if err := json.Unmarshal(data, &alert); err != nil {
			slog.Error("malformed budget alert, dropping", "error", err)
			return nil
		}
		err := notify.Send(ctx, notifier.Notification{
			Title: fmt.Sprintf("Budget at %d%% (%s)", alert.Percent, alert.Scope),
			Message: fmt.Sprintf("Spent $%.4f of $%.2f for %s in r/%s.",
				alert.SpentUSD, alert.LimitUSD, alert.PeriodKey, alert.Subreddit),
			Level:  "warning",
			Source: "budget.alert",
		})
		if err != nil && !errors.Is(err, notifier.ErrNotConfigured) {
			slog.Warn("budget alert delivery failed", "error", err)
		}
		return nil
	}
}
