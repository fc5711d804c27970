// Package moderation defines the decision vocabulary of the engine:
// actions, evaluation results, and audit entries.
package moderation

import "time"

// Action is one of the four moderation outcomes.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionFlag    Action = "FLAG"
	ActionRemove  Action = "REMOVE"
	ActionComment Action = "COMMENT"
)

// ParseAction converts a settings string to an Action, defaulting to FLAG
// for unknown values so misconfiguration never auto-approves.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionApprove, ActionFlag, ActionRemove, ActionComment:
		return Action(s)
	}
	return ActionFlag
}

// Layer identifies which pipeline stage produced a decision.
type Layer string

const (
	LayerEligibility Layer = "eligibility"
	LayerHeuristic   Layer = "layer1"
	LayerClassifier  Layer = "layer2"
	LayerRules       Layer = "layer3"
	LayerTrust       Layer = "trust"
	LayerPipeline    Layer = "pipeline"
)

// EvaluationResult is the outcome of a rule evaluation or pipeline stage.
type EvaluationResult struct {
	Action      Action `json:"action"`
	Reason      string `json:"reason"`
	Comment     string `json:"comment,omitempty"`
	MatchedRule string `json:"matched_rule,omitempty"`
	Confidence  int    `json:"confidence"`
	DryRun      bool   `json:"dry_run"`
}

// ExecutionResult reports what the action executor actually did.
type ExecutionResult struct {
	Success      bool   `json:"success"`
	CommentAdded bool   `json:"comment_added"`
	Error        string `json:"error,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

// AuditEntry is the per-event record persisted at the end of the pipeline.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     Action            `json:"action"`
	Layer      Layer             `json:"layer"`
	Timestamp  time.Time         `json:"timestamp"`
	UserID     string            `json:"user_id"`
	Username   string            `json:"username"`
	ContentID  string            `json:"content_id"`
	Subreddit  string            `json:"subreddit"`
	Reason     string            `json:"reason"`
	RuleID     string            `json:"rule_id,omitempty"`
	Confidence int               `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
