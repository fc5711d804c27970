package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/llm"
)

// minorSexualCategory is always decisive regardless of threshold.
const minorSexualCategory = "sexual/minors"

// Classifier runs the safety classification stage. It is advisory: any
// failure yields a nil result and the pipeline proceeds to the rule engine.
type Classifier struct {
	classifier llm.SafetyClassifier
	cfg        config.Classifier
	logger     *slog.Logger
}

// NewClassifier creates the safety classification stage.
func NewClassifier(c llm.SafetyClassifier, cfg config.Classifier, logger *slog.Logger) *Classifier {
	return &Classifier{classifier: c, cfg: cfg, logger: logger}
}

// Check classifies the item text. Returns nil when the stage is disabled,
// errors, or nothing crosses the threshold.
func (c *Classifier) Check(ctx context.Context, item *content.Item) *moderation.EvaluationResult {
	if !c.cfg.Enabled || c.classifier == nil {
		return nil
	}
	text := item.Text()
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	scores, err := c.classifier.Classify(ctx, text)
	if err != nil {
		c.logger.Warn("safety classification failed, skipping stage", "error", err)
		return nil
	}

	// The minors category overrides both the threshold and the configured
	// action.
	if scores.SexualMinors || scores.Categories[minorSexualCategory] {
		action := moderation.ParseAction(c.cfg.Action)
		if c.cfg.AlwaysRemoveMinorSexual {
			action = moderation.ActionRemove
		}
		return &moderation.EvaluationResult{
			Action:     action,
			Reason:     fmt.Sprintf("Content flagged for %s", minorSexualCategory),
			Confidence: 100,
		}
	}

	for _, category := range c.cfg.Categories {
		score, ok := scores.CategoryScores[category]
		if !ok || score < c.cfg.Threshold {
			continue
		}
		return &moderation.EvaluationResult{
			Action:     moderation.ParseAction(c.cfg.Action),
			Reason:     fmt.Sprintf("%s (%s %.2f)", c.cfg.Message, category, score),
			Confidence: int(score * 100),
		}
	}
	return nil
}
