package rules

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/Strob0t/ModForge/internal/domain/ai"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

// Engine evaluates user-authored rulesets against an evaluation context.
type Engine struct {
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		evaluator: NewEvaluator(),
		logger:    logger,
	}
}

// applicable merges the enabled rules of all sets that apply to the content
// kind and community into one priority-descending list. A rule carrying its
// own subreddit scope only applies in that community, regardless of which
// set it arrived in. Ties keep set order, so a subreddit rule still beats a
// global rule at equal priority.
func applicable(sets []*RuleSet, kind content.ItemKind, subreddit string) []*Rule {
	var merged []*Rule
	for _, rs := range sets {
		if rs == nil {
			continue
		}
		for i := range rs.Rules {
			r := &rs.Rules[i]
			if !r.Enabled || !r.ContentType.Matches(kind) {
				continue
			}
			if r.Subreddit != "" && !strings.EqualFold(r.Subreddit, subreddit) {
				continue
			}
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority > merged[j].Priority
	})
	return merged
}

// QuestionsFor collects the distinct AI questions of enabled AI rules that
// apply to the given content kind and community, in priority order.
func QuestionsFor(sets []*RuleSet, kind content.ItemKind, subreddit string) []ai.Question {
	seen := make(map[string]bool)
	var questions []ai.Question
	for _, r := range applicable(sets, kind, subreddit) {
		q, ok := r.Question()
		if !ok || seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}
	return questions
}

// Evaluate runs the rulesets against the context using first-match-wins over
// the merged, priority-descending rule list, so a high-priority global rule
// outranks a lower-priority subreddit rule. AI rules are skipped when no
// analysis is available. Any panic inside evaluation becomes a FLAG: the
// engine never approves on error.
func (e *Engine) Evaluate(sets []*RuleSet, ctx *EvalContext, kind content.ItemKind, dryRun bool) (result moderation.EvaluationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked", "panic", r)
			result = moderation.EvaluationResult{
				Action:     moderation.ActionFlag,
				Reason:     "Rule evaluation error - requires manual review",
				Confidence: 0,
				DryRun:     dryRun,
			}
		}
	}()

	for _, rule := range applicable(sets, kind, ctx.Subreddit) {
		if rule.Type == TypeAI && ctx.AIAnalysis == nil {
			continue
		}
		if !e.matches(rule, ctx) {
			continue
		}
		return e.buildResult(rule, ctx, dryRun)
	}

	return moderation.EvaluationResult{
		Action:     moderation.ActionApprove,
		Reason:     "No rules matched",
		Confidence: 100,
		DryRun:     false,
	}
}

// matches checks the condition tree, and for AI rules additionally requires
// a YES answer to the rule's question.
func (e *Engine) matches(rule *Rule, ctx *EvalContext) bool {
	if !e.evaluator.Evaluate(&rule.Conditions, ctx) {
		return false
	}
	if rule.Type != TypeAI {
		return true
	}
	answer, ok := ctx.AIAnalysis.ByQuestion(rule.AI.ID)
	return ok && answer.Answer == ai.AnswerYes
}

func (e *Engine) buildResult(rule *Rule, ctx *EvalContext, dryRun bool) moderation.EvaluationResult {
	result := moderation.EvaluationResult{
		Action:      rule.Action,
		Reason:      Substitute(rule.ActionConfig.Reason, ctx, rule),
		Comment:     Substitute(rule.ActionConfig.Comment, ctx, rule),
		MatchedRule: rule.ID,
		Confidence:  100,
	}
	if result.Reason == "" {
		result.Reason = "Matched rule " + rule.Name
	}

	if rule.Type == TypeAI {
		result.Confidence = 50 // default when the answer is missing
		if answer, ok := ctx.AIAnalysis.ByQuestion(rule.AI.ID); ok {
			result.Confidence = answer.Confidence
		}
	}

	if dryRun && result.Action != moderation.ActionApprove {
		result.Action = moderation.ActionFlag
		result.Reason = "[DRY RUN] " + result.Reason
		result.DryRun = true
	}

	return result
}
