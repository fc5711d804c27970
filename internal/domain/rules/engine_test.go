package rules

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/Strob0t/ModForge/internal/domain/ai"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

func testEngine() *Engine {
	return NewEngine(slog.New(slog.DiscardHandler))
}

func hardRule(id string, priority int, action moderation.Action, cond Condition) Rule {
	return Rule{
		ID:          id,
		Name:        id,
		Type:        TypeHard,
		Enabled:     true,
		Priority:    priority,
		ContentType: ContentAll,
		Conditions:  cond,
		Action:      action,
		ActionConfig: ActionConfig{
			Reason: "matched " + id,
		},
	}
}

func TestEngineFirstMatchWins(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	matchAll := Condition{} // empty tree
	rs := &RuleSet{Subreddit: "golang", Rules: []Rule{
		hardRule("first", 10, moderation.ActionRemove, matchAll),
		hardRule("second", 5, moderation.ActionFlag, matchAll),
	}}

	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.MatchedRule != "first" || result.Action != moderation.ActionRemove {
		t.Errorf("expected first rule to win, got %+v", result)
	}
	if result.Confidence != 100 {
		t.Errorf("HARD match confidence should be 100, got %d", result.Confidence)
	}
}

func TestEngineNoMatchApproves(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	rs := &RuleSet{Subreddit: "golang", Rules: []Rule{
		hardRule("never", 1, moderation.ActionRemove,
			Condition{Field: "profile.totalKarma", Operator: ">", Value: float64(1000000)}),
	}}

	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove || result.Reason != "No rules matched" {
		t.Errorf("expected default approve, got %+v", result)
	}
}

func TestEngineSkipsDisabledAndWrongKind(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	disabled := hardRule("disabled", 10, moderation.ActionRemove, Condition{})
	disabled.Enabled = false
	commentOnly := hardRule("comments", 5, moderation.ActionRemove, Condition{})
	commentOnly.ContentType = ContentComment

	rs := &RuleSet{Rules: []Rule{disabled, commentOnly}}
	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove {
		t.Errorf("disabled and wrong-kind rules must not match: %+v", result)
	}
}

func TestEngineAIRuleSkippedWithoutAnalysis(t *testing.T) {
	ctx := testContext()
	ctx.AIAnalysis = nil
	e := testEngine()

	aiRule := hardRule("spam_check", 10, moderation.ActionRemove, Condition{})
	aiRule.Type = TypeAI
	aiRule.AI = &AIRule{ID: "q_spam", Question: "Is this spam?"}

	rs := &RuleSet{Rules: []Rule{aiRule}}
	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove {
		t.Errorf("AI rule without analysis must be skipped, got %+v", result)
	}
}

func TestEngineAIRuleRequiresYes(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	aiRule := hardRule("spam_check", 10, moderation.ActionRemove, Condition{})
	aiRule.Type = TypeAI
	aiRule.AI = &AIRule{ID: "q_spam", Question: "Is this spam?"}
	rs := &RuleSet{Rules: []Rule{aiRule}}

	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionRemove {
		t.Fatalf("YES answer should match, got %+v", result)
	}
	if result.Confidence != 88 {
		t.Errorf("confidence should come from the answer, got %d", result.Confidence)
	}

	ctx.AIAnalysis = &ai.BatchResult{Answers: []ai.Answer{
		{QuestionID: "q_spam", Answer: ai.AnswerNo, Confidence: 90},
	}}
	result = e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove {
		t.Errorf("NO answer must not match, got %+v", result)
	}

	ctx.AIAnalysis = &ai.BatchResult{Answers: []ai.Answer{
		{QuestionID: "q_spam", Answer: ai.AnswerUnsure, Confidence: 10},
	}}
	result = e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove {
		t.Errorf("UNSURE answer must not match, got %+v", result)
	}
}

func TestEngineDryRunCoercesToFlag(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	rs := &RuleSet{Rules: []Rule{
		hardRule("remove_it", 10, moderation.ActionRemove, Condition{}),
	}}

	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, true)
	if result.Action != moderation.ActionFlag {
		t.Errorf("dry run must coerce to FLAG, got %s", result.Action)
	}
	if !result.DryRun || !strings.HasPrefix(result.Reason, "[DRY RUN] ") {
		t.Errorf("dry-run marker missing: %+v", result)
	}
}

func TestEngineDryRunKeepsApprove(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	rs := &RuleSet{Rules: []Rule{
		hardRule("ok", 10, moderation.ActionApprove, Condition{}),
	}}

	result := e.Evaluate([]*RuleSet{rs}, ctx, content.KindPost, true)
	if result.Action != moderation.ActionApprove || result.DryRun {
		t.Errorf("approve is unchanged in dry run, got %+v", result)
	}
}

func TestEnginePanicBecomesFlag(t *testing.T) {
	e := testEngine()

	rs := &RuleSet{Rules: []Rule{
		hardRule("boom", 10, moderation.ActionRemove,
			Condition{Field: "profile.totalKarma", Operator: ">", Value: float64(0)}),
	}}

	// Nil context forces a panic inside field lookup.
	result := e.Evaluate([]*RuleSet{rs}, nil, content.KindPost, false)
	if result.Action != moderation.ActionFlag {
		t.Errorf("panic must produce FLAG, got %+v", result)
	}
	if result.Reason != "Rule evaluation error - requires manual review" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
	if result.Confidence != 0 {
		t.Errorf("panic result confidence should be 0, got %d", result.Confidence)
	}
}

func TestEngineSubstitutesActionConfig(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	r := hardRule("templated", 10, moderation.ActionRemove, Condition{})
	r.ActionConfig = ActionConfig{
		Reason:  "removed in r/{subreddit}",
		Comment: "u/{profile.username}, see the wiki.",
	}

	result := e.Evaluate([]*RuleSet{{Rules: []Rule{r}}}, ctx, content.KindPost, false)
	if result.Reason != "removed in r/golang" {
		t.Errorf("reason not substituted: %q", result.Reason)
	}
	if result.Comment != "u/tester, see the wiki." {
		t.Errorf("comment not substituted: %q", result.Comment)
	}
}

func TestEngineSkipsForeignSubredditRule(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	foreign := hardRule("other_community", 10, moderation.ActionRemove,
		Condition{Field: "profile.totalKarma", Operator: "<", Value: float64(1000000)})
	foreign.Subreddit = "othersub"

	result := e.Evaluate([]*RuleSet{{Rules: []Rule{foreign}}}, ctx, content.KindPost, false)
	if result.Action != moderation.ActionApprove {
		t.Fatalf("rule scoped to another community must not fire, got %+v", result)
	}

	// The same rule scoped to the evaluated community does fire; the scope
	// comparison is case-insensitive.
	foreign.Subreddit = "GoLang"
	result = e.Evaluate([]*RuleSet{{Rules: []Rule{foreign}}}, ctx, content.KindPost, false)
	if result.MatchedRule != "other_community" {
		t.Errorf("matching scope should fire, got %+v", result)
	}
}

func TestEngineCrossSetPriorityOrder(t *testing.T) {
	ctx := testContext()
	e := testEngine()

	subSet := &RuleSet{Subreddit: "golang", Rules: []Rule{
		hardRule("sub_low", 5, moderation.ActionFlag, Condition{}),
	}}
	globalSet := &RuleSet{Rules: []Rule{
		hardRule("global_high", 50, moderation.ActionRemove, Condition{}),
	}}

	result := e.Evaluate([]*RuleSet{subSet, globalSet}, ctx, content.KindPost, false)
	if result.MatchedRule != "global_high" {
		t.Errorf("higher-priority global rule must win, got %+v", result)
	}

	// At equal priority the subreddit set keeps precedence.
	globalSet.Rules[0].Priority = 5
	result = e.Evaluate([]*RuleSet{subSet, globalSet}, ctx, content.KindPost, false)
	if result.MatchedRule != "sub_low" {
		t.Errorf("subreddit rule must win the tie, got %+v", result)
	}
}

func TestQuestionsForSkipsForeignSubreddit(t *testing.T) {
	foreign := hardRule("r_foreign", 10, moderation.ActionFlag, Condition{})
	foreign.Type = TypeAI
	foreign.Subreddit = "othersub"
	foreign.AI = &AIRule{ID: "q_foreign", Question: "q?"}

	local := hardRule("r_local", 5, moderation.ActionFlag, Condition{})
	local.Type = TypeAI
	local.AI = &AIRule{ID: "q_local", Question: "q?"}

	questions := QuestionsFor([]*RuleSet{{Rules: []Rule{foreign, local}}}, content.KindPost, "golang")
	if len(questions) != 1 || questions[0].ID != "q_local" {
		t.Errorf("foreign-scoped question must be excluded, got %v", questions)
	}
}

func TestQuestionsForDedupAndScope(t *testing.T) {
	q := func(id, ruleID string, ct ContentType) Rule {
		r := hardRule(ruleID, 1, moderation.ActionFlag, Condition{})
		r.Type = TypeAI
		r.ContentType = ct
		r.AI = &AIRule{ID: id, Question: "q?"}
		return r
	}

	sets := []*RuleSet{
		{Rules: []Rule{q("q_a", "r1", ContentAll), q("q_a", "r2", ContentAll)}},
		{Rules: []Rule{q("q_b", "r3", ContentComment), q("q_c", "r4", ContentPost)}},
		nil,
	}

	questions := QuestionsFor(sets, content.KindPost, "golang")
	var ids []string
	for _, question := range questions {
		ids = append(ids, question.ID)
	}
	if len(ids) != 2 || ids[0] != "q_a" || ids[1] != "q_c" {
		t.Errorf("expected [q_a q_c], got %v", ids)
	}
}
