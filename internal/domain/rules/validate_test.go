package rules

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

func TestParseRuleSetDefaults(t *testing.T) {
	data := []byte(`{
		"rules": [
			{"name": "no links", "action": "REMOVE",
			 "conditions": {"field": "currentPost.domains", "operator": "contains", "value": "spam.example"}}
		]
	}`)

	rs, warnings, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if rs.Subreddit != "golang" {
		t.Errorf("subreddit should default, got %s", rs.Subreddit)
	}
	r := rs.Rules[0]
	if r.ID != "rule_1" || !r.Enabled || r.Type != TypeHard || r.ContentType != ContentAll {
		t.Errorf("defaults not applied: %+v", r)
	}
	if r.Action != moderation.ActionRemove {
		t.Errorf("expected REMOVE, got %s", r.Action)
	}
}

func TestParseRuleSetAliases(t *testing.T) {
	data := []byte(`{
		"rules": [
			{"id": "r1", "contentType": "submission", "action": "FLAG",
			 "aiQuestion": {"question": "Is this spam?"}},
			{"id": "r2", "contentType": "any", "action": "APPROVE"}
		]
	}`)

	rs, _, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatal(err)
	}

	var r1, r2 *Rule
	for i := range rs.Rules {
		switch rs.Rules[i].ID {
		case "r1":
			r1 = &rs.Rules[i]
		case "r2":
			r2 = &rs.Rules[i]
		}
	}

	if r1.ContentType != ContentPost {
		t.Errorf(`"submission" should alias to post, got %s`, r1.ContentType)
	}
	if r2.ContentType != ContentAll {
		t.Errorf(`"any" should alias to all, got %s`, r2.ContentType)
	}
	// aiQuestion alias implies AI type with a generated question id
	if r1.Type != TypeAI || r1.AI == nil || r1.AI.ID != "q_r1" {
		t.Errorf("aiQuestion alias not honored: %+v", r1)
	}
	if r2.Type != TypeHard {
		t.Errorf("r2 should infer HARD, got %s", r2.Type)
	}
}

func TestParseRuleSetPriorityOrder(t *testing.T) {
	data := []byte(`{
		"rules": [
			{"id": "low", "priority": 1, "action": "FLAG"},
			{"id": "high", "priority": 10, "action": "FLAG"},
			{"id": "dup_a", "priority": 5, "action": "FLAG"},
			{"id": "dup_b", "priority": 5, "action": "FLAG"}
		]
	}`)

	rs, _, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	seen := make(map[int]bool)
	for _, r := range rs.Rules {
		order = append(order, r.ID)
		if seen[r.Priority] {
			t.Errorf("duplicate priority %d after validation", r.Priority)
		}
		seen[r.Priority] = true
	}

	// Priority desc; the earlier duplicate keeps its value and sorts first.
	want := []string{"high", "dup_a", "dup_b", "low"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestParseRuleSetDropsInvalidRules(t *testing.T) {
	data := []byte(`{
		"rules": [
			{"id": "ok", "action": "FLAG"},
			{"id": "bad_action", "action": "OBLITERATE"},
			{"id": "bad_field", "action": "FLAG",
			 "conditions": {"field": "settings.apiKey", "operator": "==", "value": 1}},
			{"id": "bad_op", "action": "FLAG",
			 "conditions": {"field": "profile.totalKarma", "operator": "~=", "value": 1}},
			{"id": "proto", "action": "FLAG",
			 "conditions": {"field": "profile.__proto__", "operator": "==", "value": 1}}
		]
	}`)

	rs, warnings, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].ID != "ok" {
		t.Errorf("expected only the valid rule to survive, got %+v", rs.Rules)
	}
	if len(warnings) != 4 {
		t.Errorf("expected 4 warnings, got %v", warnings)
	}
}

func TestParseRuleSetDepthLimit(t *testing.T) {
	// Build a condition nested 11 deep.
	leaf := map[string]any{"field": "profile.totalKarma", "operator": ">", "value": 1}
	cond := any(leaf)
	for range 11 {
		cond = map[string]any{"logicalOperator": "AND", "rules": []any{cond}}
	}
	doc := map[string]any{"rules": []any{
		map[string]any{"id": "deep", "action": "FLAG", "conditions": cond},
	}}
	data, _ := json.Marshal(doc)

	rs, warnings, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 0 {
		t.Error("over-deep rule should be dropped")
	}
	if len(warnings) != 1 {
		t.Errorf("expected a warning, got %v", warnings)
	}
}

func TestRuleSetRoundTrip(t *testing.T) {
	data := []byte(`{
		"rules": [
			{"id": "r1", "priority": 3, "action": "REMOVE", "contentType": "post",
			 "actionConfig": {"reason": "spam", "comment": "removed"},
			 "conditions": {"logicalOperator": "AND", "rules": [
				{"field": "profile.accountAgeDays", "operator": "<", "value": 30},
				{"field": "currentPost.wordCount", "operator": ">=", "value": 5}
			 ]}}
		]
	}`)

	rs, _, err := ParseRuleSet(data, "golang")
	if err != nil {
		t.Fatal(err)
	}

	out, err := json.Marshal(rs)
	if err != nil {
		t.Fatal(err)
	}
	rs2, _, err := ParseRuleSet(out, "golang")
	if err != nil {
		t.Fatal(err)
	}

	// Timestamps are auto-populated on parse; align them before comparing.
	rs2.UpdatedAt = rs.UpdatedAt
	rs2.Rules[0].CreatedAt = rs.Rules[0].CreatedAt
	rs2.Rules[0].UpdatedAt = rs.Rules[0].UpdatedAt
	if !reflect.DeepEqual(rs, rs2) {
		t.Errorf("round-trip mismatch:\n%+v\n%+v", rs, rs2)
	}
}
