// Package rules implements the user-authored moderation rule engine:
// the rule model, JSON validation, safe condition evaluation, variable
// substitution, and the built-in heuristic layer.
package rules

import (
	"time"

	"github.com/Strob0t/ModForge/internal/domain/ai"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/profile"
)

// RuleType distinguishes deterministic rules from LM-assisted ones.
type RuleType string

const (
	TypeHard RuleType = "HARD"
	TypeAI   RuleType = "AI"
)

// ContentType scopes a rule to posts, comments, or both.
type ContentType string

const (
	ContentPost    ContentType = "post"
	ContentComment ContentType = "comment"
	ContentAll     ContentType = "all"
)

// Matches reports whether a rule scoped to ct applies to the given item kind.
func (ct ContentType) Matches(kind content.ItemKind) bool {
	switch ct {
	case ContentAll, "":
		return true
	case ContentPost:
		return kind == content.KindPost
	case ContentComment:
		return kind == content.KindComment
	}
	return false
}

// Logical operators for nested conditions.
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// Condition is either a leaf comparison or a nested group.
// Leaf: Field/Operator/Value set. Nested: LogicalOperator/Rules set.
type Condition struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	LogicalOperator string      `json:"logicalOperator,omitempty"`
	Rules           []Condition `json:"rules,omitempty"`
}

// IsLeaf reports whether the condition is a leaf comparison.
func (c *Condition) IsLeaf() bool {
	return c.LogicalOperator == ""
}

// ActionConfig carries the action parameters of a matched rule.
type ActionConfig struct {
	Reason    string            `json:"reason"`
	Comment   string            `json:"comment,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// AIRule is the LM question attached to an AI rule.
type AIRule struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// Rule is one user-authored moderation rule.
type Rule struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         RuleType          `json:"type"`
	Enabled      bool              `json:"enabled"`
	Priority     int               `json:"priority"`
	ContentType  ContentType       `json:"contentType"`
	Subreddit    string            `json:"subreddit,omitempty"`
	Conditions   Condition         `json:"conditions"`
	Action       moderation.Action `json:"action"`
	ActionConfig ActionConfig      `json:"actionConfig"`
	AI           *AIRule           `json:"ai,omitempty"`
	CreatedAt    time.Time         `json:"createdAt,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt,omitempty"`
}

// Question returns the rule's AI question, if any.
func (r *Rule) Question() (ai.Question, bool) {
	if r.Type != TypeAI || r.AI == nil {
		return ai.Question{}, false
	}
	return ai.Question{ID: r.AI.ID, Text: r.AI.Question, Context: r.AI.Context}, true
}

// RuleSet is an ordered collection of rules for one subreddit (or "global").
type RuleSet struct {
	Version   int       `json:"version,omitempty"`
	Subreddit string    `json:"subreddit"`
	UpdatedAt time.Time `json:"updatedAt"`
	Rules     []Rule    `json:"rules"`
}

// EvalContext is the data rules condition on.
type EvalContext struct {
	Profile    *profile.UserProfile
	History    *profile.PostHistory
	Item       *content.Item
	AIAnalysis *ai.BatchResult
	Subreddit  string
}
