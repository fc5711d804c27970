package trust

import (
	"fmt"
	"time"

	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/moderation"
)

// Counters tracks moderation outcomes for one content kind.
// Invariant: Approved + Flagged + Removed <= Submitted.
type Counters struct {
	Submitted    int     `json:"submitted"`
	Approved     int     `json:"approved"`
	Flagged      int     `json:"flagged"`
	Removed      int     `json:"removed"`
	ApprovalRate float64 `json:"approval_rate"`
}

// Recalc updates the derived approval rate.
func (c *Counters) Recalc() {
	if c.Submitted > 0 {
		c.ApprovalRate = float64(c.Approved) / float64(c.Submitted) * 100
	} else {
		c.ApprovalRate = 0
	}
}

// Apply records one moderation outcome.
func (c *Counters) Apply(action moderation.Action) {
	c.Submitted++
	switch action {
	case moderation.ActionApprove:
		c.Approved++
	case moderation.ActionFlag:
		c.Flagged++
	case moderation.ActionRemove:
		c.Removed++
	}
	c.Recalc()
}

// RetroactiveRemoval converts a past approval into a removal.
func (c *Counters) RetroactiveRemoval() {
	if c.Approved > 0 {
		c.Approved--
	}
	c.Removed++
	c.Recalc()
}

// CommunityTrust is the persistent per-(user, subreddit) trust record.
// Posts and comments are tracked independently so high comment approval
// never uplifts posts.
type CommunityTrust struct {
	UserID         string    `json:"user_id"`
	Subreddit      string    `json:"subreddit"`
	Posts          Counters  `json:"posts"`
	Comments       Counters  `json:"comments"`
	LastActivity   time.Time `json:"last_activity"`
	LastCalculated time.Time `json:"last_calculated"`
}

// ForKind returns the counters for a content kind.
func (t *CommunityTrust) ForKind(kind content.ItemKind) *Counters {
	if kind == content.KindComment {
		return &t.Comments
	}
	return &t.Posts
}

// Policy holds the configurable thresholds of the community-trust gate.
type Policy struct {
	MinSubmissions  int
	MinApprovalRate float64
	DecayPerMonth   float64
}

// Decision is the answer of the community-trust gate.
type Decision struct {
	IsTrusted      bool    `json:"is_trusted"`
	ApprovalRate   float64 `json:"approval_rate"` // effective, after decay
	Submissions    int     `json:"submissions"`
	Reason         string  `json:"reason"`
	MonthsInactive int     `json:"months_inactive"`
	DecayApplied   bool    `json:"decay_applied"`
}

// Decide evaluates the gate for one content kind at the given time.
// The effective approval rate is the raw rate minus DecayPerMonth per full
// calendar month of inactivity, clamped at zero.
func (t *CommunityTrust) Decide(kind content.ItemKind, p Policy, now time.Time) Decision {
	c := t.ForKind(kind)

	d := Decision{
		Submissions:  c.Submitted,
		ApprovalRate: c.ApprovalRate,
	}

	if c.Submitted < p.MinSubmissions {
		d.Reason = fmt.Sprintf("only %d of %d required submissions", c.Submitted, p.MinSubmissions)
		return d
	}

	d.MonthsInactive = monthsBetween(t.LastActivity, now)
	effective := c.ApprovalRate - p.DecayPerMonth*float64(d.MonthsInactive)
	if effective < 0 {
		effective = 0
	}
	d.DecayApplied = d.MonthsInactive > 0
	d.ApprovalRate = effective

	if effective < p.MinApprovalRate {
		d.Reason = fmt.Sprintf("approval rate %.1f%% below %.0f%% threshold", effective, p.MinApprovalRate)
		return d
	}

	d.IsTrusted = true
	d.Reason = fmt.Sprintf("Community trusted (%.1f%% approval)", effective)
	return d
}

// monthsBetween returns the integer calendar-month difference, clamped >= 0.
func monthsBetween(from, to time.Time) int {
	if from.IsZero() || !from.Before(to) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
