package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ModForge/internal/domain"
	"github.com/Strob0t/ModForge/internal/domain/ai"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/cost"
	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/logger"
	"github.com/Strob0t/ModForge/internal/port/kv"
	"github.com/Strob0t/ModForge/internal/port/llm"
)

// recentActivityLines bounds the history summary included in the prompt.
const recentActivityLines = 10

// BatchInput carries everything one LM analysis needs.
type BatchInput struct {
	UserID     string
	Subreddit  string
	Kind       content.ItemKind
	Questions  []ai.Question
	Item       *content.Item
	Profile    *profile.UserProfile
	History    *profile.PostHistory
	TrustScore int
}

// Batcher answers AI rule questions with one LM call per batch. It caches
// answers by fingerprint, coalesces concurrent requests per user, enforces
// the spend budget, and falls back to a second provider once.
type Batcher struct {
	kv        kv.Store
	keys      *Keys
	coalescer *Coalescer
	ledger    *Ledger
	primary   llm.Provider
	fallback  llm.Provider
	prices    map[string]cost.Price

	timeout   time.Duration
	maxTokens int
	baseTTL   time.Duration
	maxTTL    time.Duration

	logger *slog.Logger
}

// NewBatcher creates the LM question batcher. fallback may be nil.
func NewBatcher(store kv.Store, keys *Keys, coalescer *Coalescer, ledger *Ledger,
	primary, fallback llm.Provider, prices map[string]cost.Price,
	timeout time.Duration, maxTokens int, baseTTL, maxTTL time.Duration,
	logger *slog.Logger) *Batcher {
	return &Batcher{
		kv:        store,
		keys:      keys,
		coalescer: coalescer,
		ledger:    ledger,
		primary:   primary,
		fallback:  fallback,
		prices:    prices,
		timeout:   timeout,
		maxTokens: maxTokens,
		baseTTL:   baseTTL,
		maxTTL:    maxTTL,
		logger:    logger,
	}
}

// Analyze returns the batch answers, or nil when analysis is unavailable
// (over budget, all providers failed). AI rules are then skipped.
func (b *Batcher) Analyze(ctx context.Context, in BatchInput) *ai.BatchResult {
	if len(in.Questions) == 0 || b.primary == nil {
		return nil
	}

	fingerprint := ai.Fingerprint(
		in.UserID, in.Subreddit, string(in.Kind), in.Questions,
		in.Item.Text(),
		ai.ProfileSummaryHash(in.Profile.AccountAgeDays, in.Profile.TotalKarma, in.Profile.EmailVerified),
	)

	if cached := b.cachedResult(ctx, b.keys.AnswerCache(fingerprint)); cached != nil {
		return cached
	}

	if b.coalescer.AcquireLock(ctx, in.UserID, logger.CorrelationID(ctx)) {
		defer b.coalescer.ReleaseLock(ctx, in.UserID)
	} else {
		if result := b.coalescer.WaitForResult(ctx, in.UserID); result != nil {
			return result
		}
		// The lock holder vanished without a result. Proceed as primary;
		// the stale lock expires on its own TTL.
		b.logger.Warn("coalescer wait timed out, proceeding uncoalesced", "user_id", in.UserID)
	}

	prompt := ai.BuildPrompt(in.Questions, ai.PromptInput{
		Kind:           string(in.Kind),
		Subreddit:      in.Subreddit,
		Title:          in.Item.Title,
		Body:           in.Item.Body,
		AccountAgeDays: in.Profile.AccountAgeDays,
		TotalKarma:     in.Profile.TotalKarma,
		RecentActivity: activitySummary(in.History),
	})

	if err := b.ledger.Check(ctx, b.estimate(prompt)); err != nil {
		if errors.Is(err, domain.ErrBudgetExceeded) {
			b.logger.Warn("lm call blocked by budget", "user_id", in.UserID)
		} else {
			b.logger.Warn("budget check failed", "error", err)
		}
		return nil
	}

	questionIDs := make([]string, len(in.Questions))
	for i, q := range in.Questions {
		questionIDs[i] = q.ID
	}

	result := b.callWithFallback(ctx, in.UserID, prompt, questionIDs)
	if result == nil {
		return nil
	}

	b.storeResult(ctx, fingerprint, in, result)
	return result
}

func (b *Batcher) cachedResult(ctx context.Context, key string) *ai.BatchResult {
	data, ok, err := b.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var result ai.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// callWithFallback tries the primary provider, then the fallback once.
// Token usage is recorded to the ledger even when parsing fails.
func (b *Batcher) callWithFallback(ctx context.Context, userID, prompt string, questionIDs []string) *ai.BatchResult {
	result, err := b.call(ctx, b.primary, userID, prompt, questionIDs)
	if err == nil {
		return result
	}
	b.logger.Warn("primary provider failed", "provider", b.primary.Name(), "error", err)

	if b.fallback == nil {
		return nil
	}
	result, err = b.call(ctx, b.fallback, userID, prompt, questionIDs)
	if err != nil {
		b.logger.Warn("fallback provider failed", "provider", b.fallback.Name(), "error", err)
		return nil
	}
	return result
}

func (b *Batcher) call(ctx context.Context, provider llm.Provider, userID, prompt string, questionIDs []string) (*ai.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := provider.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: b.maxTokens})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	callCost := cost.Compute(b.prices, resp.Model, resp.TokensIn, resp.TokensOut)
	b.ledger.Record(ctx, cost.Record{
		UserID:    userID,
		Provider:  provider.Name(),
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		CostUSD:   callCost,
	})

	answers, err := ai.ParseBatch(resp.Text, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}

	return &ai.BatchResult{
		Answers:   answers,
		Provider:  provider.Name(),
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		CostUSD:   callCost,
	}, nil
}

// storeResult writes the batch to the fingerprint cache and the per-user
// analysis key that coalesced followers poll.
func (b *Batcher) storeResult(ctx context.Context, fingerprint string, in BatchInput, result *ai.BatchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	ttl := b.answerTTL(in.TrustScore)
	if err := b.kv.Set(ctx, b.keys.AnswerCache(fingerprint), data, ttl); err != nil {
		b.logger.Warn("answer cache write failed", "error", err)
	}
	if err := b.kv.Set(ctx, b.keys.Analysis(in.UserID), data, ttl); err != nil {
		b.logger.Warn("analysis cache write failed", "error", err)
	}
}

// answerTTL scales the cache TTL linearly with trust: untrusted users get
// the base TTL, fully trusted users the maximum.
func (b *Batcher) answerTTL(trustScore int) time.Duration {
	if trustScore < 0 {
		trustScore = 0
	}
	if trustScore > 100 {
		trustScore = 100
	}
	return b.baseTTL + time.Duration(float64(b.maxTTL-b.baseTTL)*float64(trustScore)/100)
}

// estimate approximates the call cost before it happens: prompt length at
// four characters per token, plus the full output budget.
func (b *Batcher) estimate(prompt string) float64 {
	return cost.Compute(b.prices, b.primary.Model(), len(prompt)/4, b.maxTokens)
}

// activitySummary renders up to recentActivityLines "subreddit: excerpt"
// lines for the prompt.
func activitySummary(history *profile.PostHistory) []string {
	if history == nil {
		return nil
	}
	var lines []string
	for _, item := range history.Items {
		if len(lines) >= recentActivityLines {
			break
		}
		excerpt := item.Content
		if len(excerpt) > 80 {
			excerpt = excerpt[:80]
		}
		lines = append(lines, item.Subreddit+": "+excerpt)
	}
	return lines
}
