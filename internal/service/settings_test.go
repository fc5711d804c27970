package service

import (
	"context"
	"testing"
)

const subredditRulesJSON = `{
	"subreddit": "golang",
	"rules": [
		{"id": "r1", "name": "No spam", "priority": 10,
		 "conditions": {"field": "currentPost.body", "operator": "contains_i", "value": "buy now"},
		 "action": "REMOVE", "actionConfig": {"reason": "spam"}}
	]
}`

func TestSettingsLoadsSubredditRules(t *testing.T) {
	store := newMemKV()
	s := NewSettings(store, NewKeys(1, 1), subredditRulesJSON, testLogger())

	sets := s.RuleSets(context.Background(), "golang")
	if len(sets) != 2 {
		t.Fatalf("sets = %d, want 2", len(sets))
	}
	if sets[0] == nil || len(sets[0].Rules) != 1 || sets[0].Rules[0].ID != "r1" {
		t.Fatalf("subreddit set = %+v", sets[0])
	}
	// The document is scoped to one subreddit, so no global set exists.
	if sets[1] != nil {
		t.Errorf("global set = %+v, want nil", sets[1])
	}
}

func TestSettingsScopelessDocumentIsGlobal(t *testing.T) {
	doc := `{"rules": [{"id": "g1", "conditions": {}, "action": "FLAG",
		"ai": {"id": "q_g1", "question": "Is this spam?"}}]}`
	s := NewSettings(newMemKV(), NewKeys(1, 1), doc, testLogger())

	sets := s.RuleSets(context.Background(), "golang")
	if sets[0] != nil {
		t.Errorf("subreddit set = %+v, want nil", sets[0])
	}
	if sets[1] == nil || len(sets[1].Rules) != 1 {
		t.Fatalf("global set = %+v", sets[1])
	}
}

func TestSettingsCachesParsedRuleset(t *testing.T) {
	store := newMemKV()
	s := NewSettings(store, NewKeys(1, 1), subredditRulesJSON, testLogger())
	ctx := context.Background()

	s.RuleSets(ctx, "golang")
	if _, ok, _ := store.Get(ctx, NewKeys(1, 1).RuleSet("golang")); !ok {
		t.Fatal("parsed ruleset not cached")
	}

	// A second load with a corrupted source is served from cache.
	s.rulesJSON = "{definitely broken"
	sets := s.RuleSets(ctx, "golang")
	if sets[0] == nil || len(sets[0].Rules) != 1 {
		t.Fatalf("cached set = %+v", sets[0])
	}
}

func TestSettingsInvalidJSON(t *testing.T) {
	s := NewSettings(newMemKV(), NewKeys(1, 1), "{broken", testLogger())

	sets := s.RuleSets(context.Background(), "golang")
	if sets[0] != nil || sets[1] != nil {
		t.Errorf("invalid rules yielded sets %+v", sets)
	}
}

func TestSettingsEmptyRules(t *testing.T) {
	s := NewSettings(newMemKV(), NewKeys(1, 1), "", testLogger())

	for _, set := range s.RuleSets(context.Background(), "golang") {
		if set != nil {
			t.Errorf("empty config yielded %+v", set)
		}
	}
}
