// Package event defines the inbound platform events the engine reacts to.
package event

import "time"

// Kind identifies the type of a platform event.
type Kind string

const (
	KindPostSubmit    Kind = "post_submit"
	KindCommentSubmit Kind = "comment_submit"
	KindModAction     Kind = "mod_action"
)

// Event is a content submission delivered by the host platform.
type Event struct {
	Kind       Kind      `json:"kind"`
	ItemID     string    `json:"item_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Subreddit  string    `json:"subreddit"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	LinkURL    string    `json:"link_url,omitempty"`
	IsEdited   bool      `json:"is_edited,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Moderator log action names the engine reacts to.
const (
	ModActionRemoveLink     = "removelink"
	ModActionRemoveComment  = "removecomment"
	ModActionApproveLink    = "approvelink"
	ModActionApproveComment = "approvecomment"
)

// ModAction is a moderator log entry delivered by the host platform.
type ModAction struct {
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id"`
	Moderator string    `json:"moderator"`
	Subreddit string    `json:"subreddit"`
	At        time.Time `json:"at"`
}

// IsRemoval reports whether the mod action removed content.
func (m ModAction) IsRemoval() bool {
	return m.Action == ModActionRemoveLink || m.Action == ModActionRemoveComment
}

// IsApproval reports whether the mod action approved content.
func (m ModAction) IsApproval() bool {
	return m.Action == ModActionApproveLink || m.Action == ModActionApproveComment
}
