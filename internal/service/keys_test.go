package service

import (
	"context"
	"regexp"
	"testing"
)

// Every key the engine emits must carry both versions and a scope.
var keyPattern = regexp.MustCompile(`^v\d+:[^:]+:(user:[^:]+|global):.+$`)

func TestKeyFormats(t *testing.T) {
	k := NewKeys(1, 42)

	keys := map[string]string{
		"profile":       k.Profile("u1"),
		"history":       k.History("u1"),
		"trust score":   k.TrustScore("u1", "golang"),
		"trust":         k.CommunityTrust("u1", "golang"),
		"inflight":      k.InFlight("u1"),
		"analysis":      k.Analysis("u1"),
		"answers":       k.AnswerCache("abc123"),
		"tracking":      k.ApprovedTracking("t3_p1"),
		"ruleset":       k.RuleSet("golang"),
		"cost day":      k.CostDay("2025-06-15"),
		"cost provider": k.CostDayProvider("2025-06-15", "claude"),
		"cost month":    k.CostMonth("2025-06"),
		"budget alert":  k.BudgetAlert("daily", "2025-06-15", 75),
		"tracked user":  k.TrackedUser("golang", "u1"),
	}

	for name, key := range keys {
		if !keyPattern.MatchString(key) {
			t.Errorf("%s key %q does not match required format", name, key)
		}
	}

	if got, want := k.Profile("u1"), "v1:42:user:u1:profile"; got != want {
		t.Errorf("Profile = %q, want %q", got, want)
	}
	if got, want := k.RuleSet("golang"), "v1:42:global:rules:golang"; got != want {
		t.Errorf("RuleSet = %q, want %q", got, want)
	}
}

func TestVersionBumpChangesEveryKey(t *testing.T) {
	a := NewKeys(1, 1)
	b := NewKeys(1, 2)
	c := NewKeys(2, 1)

	if a.Profile("u1") == b.Profile("u1") {
		t.Error("settings version bump did not change the key")
	}
	if a.Profile("u1") == c.Profile("u1") {
		t.Error("code version bump did not change the key")
	}
}

func TestClearUserCache(t *testing.T) {
	store := newMemKV()
	k := NewKeys(1, 1)
	admin := NewCacheAdmin(store, k, testLogger())
	ctx := context.Background()

	_ = store.Set(ctx, k.Profile("u1"), []byte("p"), 0)
	_ = store.Set(ctx, k.History("u1"), []byte("h"), 0)
	_ = store.Set(ctx, k.CommunityTrust("u1", "golang"), []byte("t"), 0)
	_ = store.Set(ctx, k.Profile("u2"), []byte("other"), 0)

	n, err := admin.ClearUserCache(ctx, "u1")
	if err != nil {
		t.Fatalf("ClearUserCache: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d keys, want 3", n)
	}
	if _, ok, _ := store.Get(ctx, k.Profile("u1")); ok {
		t.Error("u1 profile still present")
	}
	if _, ok, _ := store.Get(ctx, k.Profile("u2")); !ok {
		t.Error("u2 profile deleted, should be untouched")
	}
}

func TestClearSubredditCache(t *testing.T) {
	store := newMemKV()
	k := NewKeys(1, 1)
	admin := NewCacheAdmin(store, k, testLogger())
	ctx := context.Background()

	admin.TrackUser(ctx, "golang", "u1")
	admin.TrackUser(ctx, "golang", "u2")
	_ = store.Set(ctx, k.Profile("u1"), []byte("p1"), 0)
	_ = store.Set(ctx, k.Profile("u2"), []byte("p2"), 0)
	_ = store.Set(ctx, k.RuleSet("golang"), []byte("rules"), 0)
	_ = store.Set(ctx, k.CostDay("2025-06-15"), []byte("100"), 0)

	n, err := admin.ClearSubredditCache(ctx, "golang", false)
	if err != nil {
		t.Fatalf("ClearSubredditCache: %v", err)
	}
	// 2 profiles + 2 tracking keys + ruleset
	if n != 5 {
		t.Errorf("deleted %d keys, want 5", n)
	}
	if _, ok, _ := store.Get(ctx, k.CostDay("2025-06-15")); !ok {
		t.Error("cost counter deleted without includeCost")
	}

	_ = store.Set(ctx, k.CostDay("2025-06-15"), []byte("100"), 0)
	if _, err := admin.ClearSubredditCache(ctx, "golang", true); err != nil {
		t.Fatalf("ClearSubredditCache includeCost: %v", err)
	}
	if _, ok, _ := store.Get(ctx, k.CostDay("2025-06-15")); ok {
		t.Error("cost counter survived includeCost")
	}
}
