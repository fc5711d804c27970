package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/ModForge/internal/adapter/otel"
	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/event"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/domain/rules"
	"github.com/Strob0t/ModForge/internal/logger"
	"github.com/Strob0t/ModForge/internal/port/platform"
)

// Pipeline is the decision pipeline orchestrator. It transforms one platform
// event into a moderation outcome plus side effects, and never surfaces an
// error to the event source: failures become FLAG outcomes.
type Pipeline struct {
	cfg        *config.Config
	profiles   *Profiles
	trust      *TrustStore
	classifier *Classifier
	settings   *Settings
	engine     *rules.Engine
	batcher    *Batcher
	executor   *Executor
	audit      *Audit
	admin      *CacheAdmin
	platform   platform.Client
	metrics    *otel.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline wires the orchestrator. metrics may be nil in tests.
func NewPipeline(cfg *config.Config, profiles *Profiles, trust *TrustStore,
	classifier *Classifier, settings *Settings, engine *rules.Engine,
	batcher *Batcher, executor *Executor, audit *Audit, admin *CacheAdmin,
	client platform.Client, metrics *otel.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		profiles:   profiles,
		trust:      trust,
		classifier: classifier,
		settings:   settings,
		engine:     engine,
		batcher:    batcher,
		executor:   executor,
		audit:      audit,
		admin:      admin,
		platform:   client,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleEventMessage adapts the pipeline to the message queue handler
// contract for the submit subjects.
func (p *Pipeline) HandleEventMessage(ctx context.Context, subject string, data []byte) error {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		p.logger.Error("malformed event, dropping", "subject", subject, "error", err)
		return nil
	}
	p.HandleEvent(ctx, ev)
	return nil
}

// HandleModActionMessage adapts the pipeline to the message queue handler
// contract for the mod action subject.
func (p *Pipeline) HandleModActionMessage(ctx context.Context, subject string, data []byte) error {
	var act event.ModAction
	if err := json.Unmarshal(data, &act); err != nil {
		p.logger.Error("malformed mod action, dropping", "subject", subject, "error", err)
		return nil
	}
	p.HandleModAction(ctx, act)
	return nil
}

// HandleEvent runs the decision pipeline for one submission.
func (p *Pipeline) HandleEvent(ctx context.Context, ev event.Event) {
	started := p.now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Community.EventDeadline)
	defer cancel()

	log := p.logger.With(
		"correlation_id", logger.CorrelationID(ctx),
		"item_id", ev.ItemID, "author", ev.AuthorName, "kind", ev.Kind)

	p.count(ctx, p.metricEvents(), attribute.String("kind", string(ev.Kind)))

	kind := content.KindPost
	if ev.Kind == event.KindCommentSubmit {
		kind = content.KindComment
	}
	item := content.NewItem(kind, ev.Title, ev.Body, ev.Subreddit, ev.LinkURL, ev.IsEdited)
	target := Target{ContentID: ev.ItemID, Kind: kind, Subreddit: ev.Subreddit}

	// Eligibility gate: the engine's own content and whitelisted authors are
	// never evaluated and leave no audit trail.
	if ev.AuthorName == p.cfg.Community.AppUser || slices.Contains(p.cfg.Community.Whitelist, ev.AuthorName) {
		log.Debug("eligibility gate: skipped")
		return
	}

	prof, hist, err := p.profiles.Fetch(ctx, ev.AuthorID, ev.Subreddit)
	if err != nil {
		reason := "profile fetch failed"
		if ctx.Err() != nil {
			reason = "timeout"
		}
		log.Warn("profile fetch failed, flagging", "error", err)
		p.finish(ctx, ev, target, moderation.EvaluationResult{
			Action:     moderation.ActionFlag,
			Reason:     reason,
			Confidence: 0,
		}, moderation.LayerPipeline, started, nil)
		return
	}
	if prof.IsModerator {
		log.Debug("eligibility gate: moderator")
		return
	}

	p.admin.TrackUser(ctx, ev.Subreddit, ev.AuthorID)
	score := p.trust.Score(ctx, prof, ev.Subreddit)

	// Layer 1: deterministic heuristics.
	if p.cfg.Layer1.Enabled {
		heuristics := []rules.HeuristicRule{rules.BuiltInHeuristic(
			p.cfg.Layer1.AccountAgeDays, p.cfg.Layer1.KarmaThreshold,
			moderation.ParseAction(p.cfg.Layer1.Action), p.cfg.Layer1.Message)}
		if result := rules.EvaluateHeuristics(heuristics, prof, item); result != nil {
			p.finish(ctx, ev, target, *result, moderation.LayerHeuristic, started, nil)
			return
		}
	}

	// Community-trust gate.
	decision := p.trust.GetTrust(ctx, ev.AuthorID, ev.Subreddit, kind)
	if decision.IsTrusted {
		p.count(ctx, p.metricTrustBypasses())
		p.finish(ctx, ev, target, moderation.EvaluationResult{
			Action:     moderation.ActionApprove,
			Reason:     decision.Reason,
			Confidence: 100,
		}, moderation.LayerTrust, started, nil)
		return
	}

	// Layer 2: safety classifier.
	if result := p.classifier.Check(ctx, item); result != nil {
		p.finish(ctx, ev, target, *result, moderation.LayerClassifier, started, nil)
		return
	}

	if ctx.Err() != nil {
		p.finish(ctx, ev, target, moderation.EvaluationResult{
			Action:     moderation.ActionFlag,
			Reason:     "timeout",
			Confidence: 0,
		}, moderation.LayerPipeline, started, nil)
		return
	}

	// Layer 3: user-authored rules with optional LM analysis.
	result, analysisCost := p.evaluateRules(ctx, ev, kind, item, prof, hist, score.Total)
	p.finish(ctx, ev, target, result, moderation.LayerRules, started, analysisCost)
}

// evaluateRules runs the rule engine, invoking the LM batcher when enabled
// AI rules ask questions about this content kind.
func (p *Pipeline) evaluateRules(ctx context.Context, ev event.Event, kind content.ItemKind,
	item *content.Item, prof *profile.UserProfile, hist *profile.PostHistory, trustScore int) (moderation.EvaluationResult, *float64) {

	sets := p.settings.RuleSets(ctx, ev.Subreddit)

	evalCtx := &rules.EvalContext{
		Profile:   prof,
		History:   hist,
		Item:      item,
		Subreddit: ev.Subreddit,
	}

	var analysisCost *float64
	if p.cfg.RuleEngine.Enabled {
		if questions := rules.QuestionsFor(sets, kind, ev.Subreddit); len(questions) > 0 {
			analysis := p.batcher.Analyze(ctx, BatchInput{
				UserID:     ev.AuthorID,
				Subreddit:  ev.Subreddit,
				Kind:       kind,
				Questions:  questions,
				Item:       item,
				Profile:    prof,
				History:    hist,
				TrustScore: trustScore,
			})
			if analysis != nil {
				evalCtx.AIAnalysis = analysis
				analysisCost = &analysis.CostUSD
				p.count(ctx, p.metricLMCalls(), attribute.String("provider", analysis.Provider))
			} else {
				zero := 0.0
				analysisCost = &zero
			}
		}
	}

	return p.engine.Evaluate(sets, evalCtx, kind, p.cfg.DryRun.Enabled), analysisCost
}

// finish applies dry-run coercion, executes the action, updates trust, and
// writes the audit entry.
func (p *Pipeline) finish(ctx context.Context, ev event.Event, target Target,
	result moderation.EvaluationResult, layer moderation.Layer, started time.Time, analysisCost *float64) {

	if p.cfg.DryRun.Enabled && result.Action != moderation.ActionApprove && !result.DryRun {
		result.Action = moderation.ActionFlag
		result.Reason = "[DRY RUN] " + result.Reason
		result.DryRun = true
	}

	exec := p.executor.Execute(ctx, target, result)

	if result.Action == moderation.ActionApprove && !result.DryRun {
		if err := p.trust.TrackApproved(ctx, target.ContentID, ev.AuthorID, ev.Subreddit, target.Kind); err != nil {
			p.logger.Warn("approved tracking write failed", "content_id", target.ContentID, "error", err)
		}
	}
	if layer != moderation.LayerPipeline {
		if err := p.trust.UpdateTrust(ctx, ev.AuthorID, ev.Subreddit, result.Action, target.Kind); err != nil {
			p.logger.Warn("trust update failed", "user_id", ev.AuthorID, "error", err)
		}
	}

	metadata := map[string]string{}
	if analysisCost != nil {
		metadata["aiCost"] = strconv.FormatFloat(*analysisCost, 'f', -1, 64)
	}
	if result.DryRun {
		metadata["dryRun"] = "true"
	}
	if !exec.Success {
		metadata["executionError"] = exec.Error
	}
	if exec.CommentAdded {
		metadata["commentAdded"] = "true"
	}

	auditAction := result.Action
	if !exec.Success {
		// The host action failed; the content is still in the mod queue path.
		auditAction = moderation.ActionFlag
	}

	p.audit.Write(ctx, moderation.AuditEntry{
		Action:     auditAction,
		Layer:      layer,
		UserID:     ev.AuthorID,
		Username:   ev.AuthorName,
		ContentID:  target.ContentID,
		Subreddit:  ev.Subreddit,
		Reason:     result.Reason,
		RuleID:     result.MatchedRule,
		Confidence: result.Confidence,
		Metadata:   metadata,
	})

	p.count(ctx, p.metricDecisions(),
		attribute.String("action", string(auditAction)),
		attribute.String("layer", string(layer)))
	if h := p.metricDecisionSeconds(); h != nil {
		h.Record(ctx, p.now().Sub(started).Seconds())
	}

	p.logger.Info("decision",
		"correlation_id", logger.CorrelationID(ctx),
		"content_id", target.ContentID,
		"action", auditAction, "layer", layer,
		"reason", result.Reason, "rule_id", result.MatchedRule,
		"success", exec.Success)
}

// HandleModAction reacts to moderator log entries: removals retroactively
// penalize trust, approvals reinforce it.
func (p *Pipeline) HandleModAction(ctx context.Context, act event.ModAction) {
	switch {
	case act.IsRemoval():
		if err := p.trust.RetroactiveRemoval(ctx, act.TargetID); err != nil {
			p.logger.Warn("retroactive removal failed", "target_id", act.TargetID, "error", err)
		}
	case act.IsApproval():
		p.applyModApproval(ctx, act)
	}
}

// applyModApproval credits a moderator approval to the author's trust
// counters. The author must be looked up from the content.
func (p *Pipeline) applyModApproval(ctx context.Context, act event.ModAction) {
	var (
		userID string
		kind   content.ItemKind
		err    error
	)
	if act.Action == event.ModActionApproveLink {
		kind = content.KindPost
		var post *platform.Post
		if post, err = p.platform.GetPostByID(ctx, act.TargetID); err == nil {
			userID = post.AuthorID
		}
	} else {
		kind = content.KindComment
		var comment *platform.Comment
		if comment, err = p.platform.GetCommentByID(ctx, act.TargetID); err == nil {
			userID = comment.AuthorID
		}
	}
	if err != nil {
		p.logger.Warn("mod approval lookup failed", "target_id", act.TargetID, "error", err)
		return
	}

	if err := p.trust.UpdateTrust(ctx, userID, act.Subreddit, moderation.ActionApprove, kind); err != nil {
		p.logger.Warn("mod approval trust update failed", "user_id", userID, "error", err)
	}
}

func (p *Pipeline) count(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (p *Pipeline) metricEvents() metric.Int64Counter {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.EventsProcessed
}

func (p *Pipeline) metricDecisions() metric.Int64Counter {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.Decisions
}

func (p *Pipeline) metricLMCalls() metric.Int64Counter {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.LMCalls
}

func (p *Pipeline) metricTrustBypasses() metric.Int64Counter {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.TrustBypasses
}

func (p *Pipeline) metricDecisionSeconds() metric.Float64Histogram {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.DecisionSeconds
}
