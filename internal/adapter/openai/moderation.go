package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/ModForge/internal/port/llm"
)

const moderationModel = "omni-moderation-latest"

// minorSexualCategory is checked regardless of the configured threshold.
const minorSexualCategory = "sexual/minors"

// Moderation implements llm.SafetyClassifier via the moderation API.
type Moderation struct {
	client *Client
}

// NewModeration creates the safety classifier. It shares the chat client's
// endpoint and key handling.
func NewModeration(apiKey string, timeout time.Duration) *Moderation {
	return &Moderation{client: NewClient("openai", apiKey, moderationModel, "", timeout)}
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Classify scores the text against the moderation categories.
func (m *Moderation) Classify(ctx context.Context, text string) (*llm.SafetyScores, error) {
	if m.client.apiKey == "" {
		return nil, llm.ErrNotConfigured
	}

	body, err := json.Marshal(moderationRequest{Model: moderationModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("moderation marshal: %w", err)
	}

	data, err := m.client.post(ctx, "/v1/moderations", body)
	if err != nil {
		return nil, err
	}

	var mr moderationResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return nil, fmt.Errorf("moderation unmarshal: %w", err)
	}
	if len(mr.Results) == 0 {
		return nil, fmt.Errorf("moderation: empty results")
	}

	r := mr.Results[0]
	scores := &llm.SafetyScores{
		Flagged:        r.Flagged,
		Categories:     r.Categories,
		CategoryScores: r.CategoryScores,
		SexualMinors:   r.Categories[minorSexualCategory],
	}
	for category, score := range r.CategoryScores {
		if score > scores.HighestScore {
			scores.HighestScore = score
			scores.HighestCategory = category
		}
	}
	return scores, nil
}
