package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/ModForge/internal/config"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/port/llm"
)

func classifierConfig() config.Classifier {
	return config.Classifier{
		Enabled:                 true,
		Threshold:               0.5,
		Categories:              []string{"hate", "harassment"},
		Action:                  "FLAG",
		Message:                 "Content flagged by safety classifier",
		AlwaysRemoveMinorSexual: true,
		Timeout:                 time.Second,
	}
}

func TestClassifierDisabled(t *testing.T) {
	fake := &fakeClassifier{}
	cfg := classifierConfig()
	cfg.Enabled = false
	c := NewClassifier(fake, cfg, testLogger())

	if got := c.Check(context.Background(), testItem(t)); got != nil {
		t.Errorf("Check = %+v, want nil", got)
	}
	if fake.calls != 0 {
		t.Errorf("classifier called %d times while disabled", fake.calls)
	}
}

func TestClassifierThresholdBoundary(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		match bool
	}{
		{"at threshold", 0.5, true},
		{"just below", 0.499, false},
		{"above", 0.91, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClassifier{scores: &llm.SafetyScores{
				CategoryScores: map[string]float64{"harassment": tt.score},
			}}
			c := NewClassifier(fake, classifierConfig(), testLogger())

			result := c.Check(context.Background(), testItem(t))
			if (result != nil) != tt.match {
				t.Fatalf("score %v: result = %+v, want match=%v", tt.score, result, tt.match)
			}
			if tt.match && result.Action != moderation.ActionFlag {
				t.Errorf("action = %v, want FLAG", result.Action)
			}
		})
	}
}

func TestClassifierIgnoresUncheckedCategories(t *testing.T) {
	fake := &fakeClassifier{scores: &llm.SafetyScores{
		CategoryScores: map[string]float64{"violence": 0.99},
	}}
	c := NewClassifier(fake, classifierConfig(), testLogger())

	if got := c.Check(context.Background(), testItem(t)); got != nil {
		t.Errorf("unchecked category matched: %+v", got)
	}
}

func TestClassifierMinorSexualOverride(t *testing.T) {
	// Provider flag set despite a low score and a high threshold.
	fake := &fakeClassifier{scores: &llm.SafetyScores{
		SexualMinors:   true,
		CategoryScores: map[string]float64{"sexual/minors": 0.2},
	}}
	cfg := classifierConfig()
	cfg.Threshold = 0.9
	c := NewClassifier(fake, cfg, testLogger())

	result := c.Check(context.Background(), testItem(t))
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Action != moderation.ActionRemove {
		t.Errorf("action = %v, want REMOVE", result.Action)
	}
	if !strings.Contains(result.Reason, "sexual/minors") {
		t.Errorf("reason %q does not name the category", result.Reason)
	}
}

func TestClassifierMinorSexualWithoutAutoRemove(t *testing.T) {
	fake := &fakeClassifier{scores: &llm.SafetyScores{SexualMinors: true}}
	cfg := classifierConfig()
	cfg.AlwaysRemoveMinorSexual = false
	c := NewClassifier(fake, cfg, testLogger())

	result := c.Check(context.Background(), testItem(t))
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Action != moderation.ActionFlag {
		t.Errorf("action = %v, want configured FLAG", result.Action)
	}
}

func TestClassifierErrorSkipsStage(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("upstream down")}
	c := NewClassifier(fake, classifierConfig(), testLogger())

	if got := c.Check(context.Background(), testItem(t)); got != nil {
		t.Errorf("Check = %+v, want nil on classifier error", got)
	}
}
