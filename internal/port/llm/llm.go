// Package llm defines the language model provider port (interface).
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a provider has no API key.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Request is one completion call.
type Request struct {
	Prompt    string
	MaxTokens int
}

// Response is the raw completion plus usage accounting.
type Response struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// Provider is the port interface for LM completion providers.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Complete runs one completion. The context carries the provider
	// timeout; implementations must respect cancellation.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// SafetyScores are the per-category scores from a content safety classifier,
// in [0,1].
type SafetyScores struct {
	Flagged         bool               `json:"flagged"`
	Categories      map[string]bool    `json:"categories"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	SexualMinors    bool               `json:"sexual_minors"`
	HighestCategory string             `json:"highest_category"`
	HighestScore    float64            `json:"highest_score"`
}

// SafetyClassifier is the port interface for the fast safety check that runs
// before the rule engine.
type SafetyClassifier interface {
	Classify(ctx context.Context, text string) (*SafetyScores, error)
}
