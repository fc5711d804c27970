package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
	"github.com/Strob0t/ModForge/internal/domain/trust"
)

func testTrustStore(store *memKV) *TrustStore {
	policy := trust.Policy{MinSubmissions: 3, MinApprovalRate: 70, DecayPerMonth: 5}
	ts := NewTrustStore(store, NewKeys(1, 1), policy, 24*time.Hour, 7*24*time.Hour, testLogger())
	ts.now = func() time.Time {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.now
	}
	return ts
}

func TestTrustGateLifecycle(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()

	d := ts.GetTrust(ctx, "u1", "golang", content.KindPost)
	if d.IsTrusted {
		t.Fatal("new user trusted")
	}

	for range 3 {
		if err := ts.UpdateTrust(ctx, "u1", "golang", moderation.ActionApprove, content.KindPost); err != nil {
			t.Fatalf("UpdateTrust: %v", err)
		}
	}

	d = ts.GetTrust(ctx, "u1", "golang", content.KindPost)
	if !d.IsTrusted {
		t.Fatalf("3/3 approvals not trusted: %+v", d)
	}
	if d.ApprovalRate != 100 {
		t.Errorf("approval rate = %v, want 100", d.ApprovalRate)
	}
}

func TestTrustKindIndependence(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()

	// High comment approval must never uplift posts.
	for range 5 {
		_ = ts.UpdateTrust(ctx, "u1", "golang", moderation.ActionApprove, content.KindComment)
	}

	if d := ts.GetTrust(ctx, "u1", "golang", content.KindPost); d.IsTrusted {
		t.Fatalf("post trust uplifted by comment approvals: %+v", d)
	}
	if d := ts.GetTrust(ctx, "u1", "golang", content.KindComment); !d.IsTrusted {
		t.Fatalf("comment trust missing: %+v", d)
	}
}

func TestTrustInactivityDecay(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()

	// 10 submissions, 8 approved: 80% raw.
	for range 8 {
		_ = ts.UpdateTrust(ctx, "u1", "golang", moderation.ActionApprove, content.KindPost)
	}
	for range 2 {
		_ = ts.UpdateTrust(ctx, "u1", "golang", moderation.ActionFlag, content.KindPost)
	}

	if d := ts.GetTrust(ctx, "u1", "golang", content.KindPost); !d.IsTrusted {
		t.Fatalf("80%% not trusted: %+v", d)
	}

	// Three months of inactivity: 80 - 15 = 65 < 70.
	store.advance(92 * 24 * time.Hour)
	d := ts.GetTrust(ctx, "u1", "golang", content.KindPost)
	if d.IsTrusted {
		t.Fatalf("decayed user still trusted: %+v", d)
	}
	if !d.DecayApplied || d.MonthsInactive < 3 {
		t.Errorf("decay not applied: %+v", d)
	}
}

func TestRetroactiveRemoval(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()

	for range 10 {
		_ = ts.UpdateTrust(ctx, "u3", "golang", moderation.ActionApprove, content.KindPost)
	}
	if err := ts.TrackApproved(ctx, "t3_p3", "u3", "golang", content.KindPost); err != nil {
		t.Fatalf("TrackApproved: %v", err)
	}

	if err := ts.RetroactiveRemoval(ctx, "t3_p3"); err != nil {
		t.Fatalf("RetroactiveRemoval: %v", err)
	}

	d := ts.GetTrust(ctx, "u3", "golang", content.KindPost)
	if d.ApprovalRate != 90 {
		t.Errorf("approval rate = %v, want 90 after 9/10", d.ApprovalRate)
	}

	// The record is consumed: a second removal is a no-op.
	if err := ts.RetroactiveRemoval(ctx, "t3_p3"); err != nil {
		t.Fatalf("second RetroactiveRemoval: %v", err)
	}
	d = ts.GetTrust(ctx, "u3", "golang", content.KindPost)
	if d.ApprovalRate != 90 {
		t.Errorf("approval rate changed on replay: %v", d.ApprovalRate)
	}
}

func TestRetroactiveRemovalEquivalentToRemove(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()

	// APPROVE then retroactive removal...
	_ = ts.UpdateTrust(ctx, "a", "golang", moderation.ActionApprove, content.KindPost)
	_ = ts.TrackApproved(ctx, "t3_a", "a", "golang", content.KindPost)
	_ = ts.RetroactiveRemoval(ctx, "t3_a")

	// ...matches a straight REMOVE.
	_ = ts.UpdateTrust(ctx, "b", "golang", moderation.ActionRemove, content.KindPost)

	da := ts.GetTrust(ctx, "a", "golang", content.KindPost)
	db := ts.GetTrust(ctx, "b", "golang", content.KindPost)
	if da.ApprovalRate != db.ApprovalRate || da.Submissions != db.Submissions {
		t.Errorf("retroactive %+v != direct remove %+v", da, db)
	}
}

func TestRetroactiveRemovalUnknownContent(t *testing.T) {
	ts := testTrustStore(newMemKV())
	if err := ts.RetroactiveRemoval(context.Background(), "t3_never_seen"); err != nil {
		t.Fatalf("unknown content errored: %v", err)
	}
}

func TestTrustScoreCachedAndInvalidated(t *testing.T) {
	store := newMemKV()
	ts := testTrustStore(store)
	ctx := context.Background()
	prof := testProfile("u1")

	s := ts.Score(ctx, prof, "golang")
	// 120 days = 30, 800 karma = 15, email = 15, 0 approvals = 0.
	if s.Total != 60 || s.IsTrusted {
		t.Fatalf("score = %+v, want total 60 untrusted", s)
	}

	// Approvals land but the cached score is served until invalidation.
	for range 6 {
		_ = ts.UpdateTrust(ctx, "u1", "golang", moderation.ActionApprove, content.KindPost)
	}
	if s := ts.Score(ctx, prof, "golang"); s.Total != 60 {
		t.Fatalf("cached score = %d, want 60", s.Total)
	}

	_ = ts.TrackApproved(ctx, "t3_x", "u1", "golang", content.KindPost)
	_ = ts.RetroactiveRemoval(ctx, "t3_x")

	s = ts.Score(ctx, prof, "golang")
	// 5 remaining approvals = 10 points.
	if s.Total != 70 || !s.IsTrusted {
		t.Fatalf("recomputed score = %+v, want total 70 trusted", s)
	}
}
