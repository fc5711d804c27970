// Package trust implements the per-user trust score and the per-community
// approval-rate gate with inactivity decay.
package trust

import "github.com/Strob0t/ModForge/internal/domain/profile"

// TrustedScoreThreshold is the score at or above which a user counts as
// trusted for metadata purposes. The community gate below is what actually
// bypasses layers.
const TrustedScoreThreshold = 70

// Score is the 0-100 metadata trust score for a (user, subreddit) pair.
type Score struct {
	Total     int  `json:"total"`
	IsTrusted bool `json:"is_trusted"`

	AccountAge    int `json:"account_age"`
	Karma         int `json:"karma"`
	EmailVerified int `json:"email_verified"`
	Approvals     int `json:"approvals"`
}

// ComputeScore derives the trust score from profile facts and the count of
// previously approved items in the subreddit.
func ComputeScore(p *profile.UserProfile, approvedInSub int) Score {
	s := Score{
		AccountAge:    agePoints(p.AccountAgeDays),
		Karma:         karmaPoints(p.TotalKarma),
		Approvals:     approvalPoints(approvedInSub),
	}
	if p.EmailVerified {
		s.EmailVerified = 15
	}
	s.Total = s.AccountAge + s.Karma + s.EmailVerified + s.Approvals
	s.IsTrusted = s.Total >= TrustedScoreThreshold
	return s
}

func agePoints(days int) int {
	switch {
	case days < 7:
		return 0
	case days < 30:
		return 10
	case days < 90:
		return 20
	case days < 365:
		return 30
	default:
		return 40
	}
}

func karmaPoints(karma int) int {
	switch {
	case karma < 10:
		return 0
	case karma < 100:
		return 5
	case karma < 500:
		return 10
	case karma < 1000:
		return 15
	case karma < 5000:
		return 20
	default:
		return 30
	}
}

func approvalPoints(approved int) int {
	switch {
	case approved == 0:
		return 0
	case approved <= 2:
		return 5
	case approved <= 5:
		return 10
	default:
		return 15
	}
}
