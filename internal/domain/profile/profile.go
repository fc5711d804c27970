// Package profile models user account facts and recent activity history.
package profile

import (
	"strings"
	"time"
)

// UserProfile holds account facts fetched from the host platform.
// Immutable once cached.
type UserProfile struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	AccountAgeDays int       `json:"account_age_days"`
	CommentKarma   int       `json:"comment_karma"`
	PostKarma      int       `json:"post_karma"`
	TotalKarma     int       `json:"total_karma"`
	EmailVerified  bool      `json:"email_verified"`
	IsModerator    bool      `json:"is_moderator"`
	HasFlair       bool      `json:"has_flair"`
	HasPremium     bool      `json:"has_premium"`
	IsVerified     bool      `json:"is_verified"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// HistoryItem is one post or comment from a user's recent activity window.
type HistoryItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "post" | "comment"
	Subreddit string    `json:"subreddit"`
	Content   string    `json:"content"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryMetrics summarizes a user's activity window for rule conditions.
type HistoryMetrics struct {
	TotalItems        int       `json:"total_items"`
	PostsInTargetSubs int       `json:"posts_in_target_subs"`
	PostsInDatingSubs int       `json:"posts_in_dating_subs"`
	AvgScore          float64   `json:"avg_score"`
	OldestItemDate    time.Time `json:"oldest_item_date"`
	NewestItemDate    time.Time `json:"newest_item_date"`
}

// PostHistory is a user's recent activity window plus derived metrics.
type PostHistory struct {
	UserID  string         `json:"user_id"`
	Items   []HistoryItem  `json:"items"`
	Metrics HistoryMetrics `json:"metrics"`
}

// NewPostHistory builds a PostHistory, deriving metrics from items.
// targetSubs and datingSubs are lowercase subreddit names counted separately
// for the corresponding metrics.
func NewPostHistory(userID string, items []HistoryItem, targetSubs, datingSubs map[string]bool) *PostHistory {
	h := &PostHistory{UserID: userID, Items: items}
	h.Metrics.TotalItems = len(items)

	var scoreSum int
	for i, item := range items {
		scoreSum += item.Score
		if targetSubs[strings.ToLower(item.Subreddit)] {
			h.Metrics.PostsInTargetSubs++
		}
		if datingSubs[strings.ToLower(item.Subreddit)] {
			h.Metrics.PostsInDatingSubs++
		}
		if i == 0 || item.CreatedAt.Before(h.Metrics.OldestItemDate) {
			h.Metrics.OldestItemDate = item.CreatedAt
		}
		if i == 0 || item.CreatedAt.After(h.Metrics.NewestItemDate) {
			h.Metrics.NewestItemDate = item.CreatedAt
		}
	}
	if len(items) > 0 {
		h.Metrics.AvgScore = float64(scoreSum) / float64(len(items))
	}
	return h
}

// Subreddits returns the distinct subreddits present in the history window.
func (h *PostHistory) Subreddits() []string {
	seen := make(map[string]bool)
	var subs []string
	for _, item := range h.Items {
		s := strings.ToLower(item.Subreddit)
		if !seen[s] {
			seen[s] = true
			subs = append(subs, s)
		}
	}
	return subs
}
