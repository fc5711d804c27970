package rules

import (
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/profile"
)

// IntClause is one numeric comparison in a heuristic rule.
type IntClause struct {
	Op    string `json:"op"` // "<" | ">" | "<=" | ">="
	Value int    `json:"value"`
}

func (c *IntClause) matches(actual int) bool {
	switch c.Op {
	case "<":
		return actual < c.Value
	case ">":
		return actual > c.Value
	case "<=":
		return actual <= c.Value
	case ">=":
		return actual >= c.Value
	}
	return false
}

// HeuristicRule is one cheap deterministic predicate: a conjunction of up to
// four optional clauses. Nil clauses always pass.
type HeuristicRule struct {
	Enabled          bool              `json:"enabled"`
	AccountAgeDays   *IntClause        `json:"account_age_days,omitempty"`
	TotalKarma       *IntClause        `json:"total_karma,omitempty"`
	HasExternalLinks *bool             `json:"has_external_links,omitempty"`
	EmailVerified    *bool             `json:"email_verified,omitempty"`
	Action           moderation.Action `json:"action"`
	Message          string            `json:"message"`
}

// Matches evaluates the conjunction against the profile and item. No I/O.
func (r *HeuristicRule) Matches(p *profile.UserProfile, item *content.Item) bool {
	if !r.Enabled {
		return false
	}
	if r.AccountAgeDays != nil && !r.AccountAgeDays.matches(p.AccountAgeDays) {
		return false
	}
	if r.TotalKarma != nil && !r.TotalKarma.matches(p.TotalKarma) {
		return false
	}
	if r.HasExternalLinks != nil && item.HasExternalLinks() != *r.HasExternalLinks {
		return false
	}
	if r.EmailVerified != nil && p.EmailVerified != *r.EmailVerified {
		return false
	}
	return true
}

// EvaluateHeuristics returns the result of the first matching rule, or nil.
func EvaluateHeuristics(list []HeuristicRule, p *profile.UserProfile, item *content.Item) *moderation.EvaluationResult {
	for i := range list {
		if list[i].Matches(p, item) {
			return &moderation.EvaluationResult{
				Action:     list[i].Action,
				Reason:     list[i].Message,
				Confidence: 100,
			}
		}
	}
	return nil
}

// BuiltInHeuristic builds the standard new-account rule from settings:
// account age below the threshold AND total karma below the threshold.
func BuiltInHeuristic(accountAgeDays, karmaThreshold int, action moderation.Action, message string) HeuristicRule {
	return HeuristicRule{
		Enabled:        true,
		AccountAgeDays: &IntClause{Op: "<", Value: accountAgeDays},
		TotalKarma:     &IntClause{Op: "<", Value: karmaThreshold},
		Action:         action,
		Message:        message,
	}
}
