package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

// MaxConditionDepth bounds condition tree nesting.
const MaxConditionDepth = 10

var validOperators = map[string]bool{
	"<": true, ">": true, "<=": true, ">=": true, "==": true, "!=": true,
	"contains": true, "not_contains": true, "contains_i": true, "not_contains_i": true,
	"in": true, "not_in": true,
	"regex": true, "regex_i": true,
}

// rawRule accepts the external JSON with its backwards-compat aliases.
type rawRule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Enabled     *bool           `json:"enabled"`
	Priority    *int            `json:"priority"`
	ContentType string          `json:"contentType"`
	Subreddit   string          `json:"subreddit"`
	Conditions  Condition       `json:"conditions"`
	Action      string          `json:"action"`
	ActionCfg   ActionConfig    `json:"actionConfig"`
	AI          *AIRule         `json:"ai"`
	AIQuestion  *AIRule         `json:"aiQuestion"` // legacy alias for "ai"
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type rawRuleSet struct {
	Version   int       `json:"version"`
	Subreddit string    `json:"subreddit"`
	Rules     []rawRule `json:"rules"`
}

// ParseRuleSet validates external rules JSON and returns a canonical RuleSet
// plus non-fatal warnings. Invalid individual rules are dropped with a
// warning; a malformed document is an error.
func ParseRuleSet(data []byte, defaultSubreddit string) (*RuleSet, []string, error) {
	var raw rawRuleSet
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("rules json: %w", err)
	}

	rs := &RuleSet{
		Version:   raw.Version,
		Subreddit: raw.Subreddit,
		UpdatedAt: time.Now().UTC(),
	}
	if rs.Subreddit == "" {
		rs.Subreddit = defaultSubreddit
	}

	var warnings []string
	for i, r := range raw.Rules {
		rule, err := canonicalize(r, i)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("rule[%d] dropped: %v", i, err))
			continue
		}
		rs.Rules = append(rs.Rules, rule)
	}

	dedupePriorities(rs.Rules)
	sortByPriority(rs.Rules)

	return rs, warnings, nil
}

func canonicalize(r rawRule, index int) (Rule, error) {
	rule := Rule{
		ID:           r.ID,
		Name:         r.Name,
		Subreddit:    r.Subreddit,
		Conditions:   r.Conditions,
		ActionConfig: r.ActionCfg,
		AI:           r.AI,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule_%d", index+1)
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if rule.AI == nil && r.AIQuestion != nil {
		rule.AI = r.AIQuestion
	}

	// Rule type: explicit, or inferred from the presence of an ai subfield.
	switch strings.ToUpper(r.Type) {
	case "HARD":
		rule.Type = TypeHard
	case "AI":
		rule.Type = TypeAI
	default:
		if rule.AI != nil {
			rule.Type = TypeAI
		} else {
			rule.Type = TypeHard
		}
	}
	if rule.Type == TypeAI {
		if rule.AI == nil || rule.AI.Question == "" {
			return Rule{}, fmt.Errorf("AI rule without a question")
		}
		if rule.AI.ID == "" {
			rule.AI.ID = "q_" + rule.ID
		}
	}

	rule.Enabled = true
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	if r.Priority != nil {
		rule.Priority = *r.Priority
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = rule.CreatedAt
	}

	switch strings.ToLower(r.ContentType) {
	case "post", "submission":
		rule.ContentType = ContentPost
	case "comment":
		rule.ContentType = ContentComment
	case "any", "all", "":
		rule.ContentType = ContentAll
	default:
		return Rule{}, fmt.Errorf("unknown contentType %q", r.ContentType)
	}

	switch action := moderation.Action(strings.ToUpper(r.Action)); action {
	case moderation.ActionApprove, moderation.ActionFlag, moderation.ActionRemove, moderation.ActionComment:
		rule.Action = action
	default:
		return Rule{}, fmt.Errorf("unknown action %q", r.Action)
	}

	if err := validateCondition(&rule.Conditions, 1); err != nil {
		return Rule{}, err
	}

	return rule, nil
}

func validateCondition(c *Condition, depth int) error {
	if depth > MaxConditionDepth {
		return fmt.Errorf("condition tree exceeds depth %d", MaxConditionDepth)
	}

	if c.IsLeaf() {
		if c.Field == "" && c.Operator == "" && len(c.Rules) == 0 {
			// Empty condition tree: matches everything. Allowed for AI rules
			// whose match is the AI answer itself.
			return nil
		}
		if c.Field == "" {
			return fmt.Errorf("leaf condition missing field")
		}
		if !validOperators[c.Operator] {
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
		if !AllowedFieldPath(c.Field) {
			return fmt.Errorf("field %q not allowed", c.Field)
		}
		return nil
	}

	if c.LogicalOperator != LogicalAnd && c.LogicalOperator != LogicalOr {
		return fmt.Errorf("unknown logical operator %q", c.LogicalOperator)
	}
	if len(c.Rules) == 0 {
		return fmt.Errorf("%s group with no children", c.LogicalOperator)
	}
	for i := range c.Rules {
		if err := validateCondition(&c.Rules[i], depth+1); err != nil {
			return err
		}
	}
	return nil
}

// dedupePriorities makes priorities unique, breaking ties on original array
// order: the earlier rule keeps the value, later duplicates are shifted down.
func dedupePriorities(list []Rule) {
	seen := make(map[int]bool, len(list))
	for i := range list {
		p := list[i].Priority
		for seen[p] {
			p--
		}
		seen[p] = true
		list[i].Priority = p
	}
}

// sortByPriority orders rules by priority descending; the dedupe pass keeps
// the sort stable with respect to original order.
func sortByPriority(list []Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority > list[j].Priority
	})
}
