// Package platform defines the host platform port (interface): the content,
// user, and moderation operations the engine performs against Reddit-style
// communities.
package platform

import (
	"context"

	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/profile"
)

// Post is a submission as returned by the host platform.
type Post struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Author    string `json:"author"`
	Subreddit string `json:"subreddit"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	LinkURL   string `json:"link_url,omitempty"`
	IsEdited  bool   `json:"is_edited"`
	Removed   bool   `json:"removed"`
}

// Comment is a comment as returned by the host platform.
type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	AuthorID  string `json:"author_id"`
	Author    string `json:"author"`
	Subreddit string `json:"subreddit"`
	Body      string `json:"body"`
	IsEdited  bool   `json:"is_edited"`
	Removed   bool   `json:"removed"`
}

// ContentQuery bounds a user-content listing.
type ContentQuery struct {
	Limit int // max items, capped by the adapter
	Kind  content.ItemKind
}

// Client is the port interface for host platform operations. Implementations
// apply the shared rate limit and circuit breaker; callers see only errors.
type Client interface {
	// GetPostByID fetches one submission.
	GetPostByID(ctx context.Context, id string) (*Post, error)

	// GetCommentByID fetches one comment.
	GetCommentByID(ctx context.Context, id string) (*Comment, error)

	// GetUserByID fetches account facts for a user.
	GetUserByID(ctx context.Context, userID string) (*profile.UserProfile, error)

	// GetUserContent lists a user's recent posts and comments, newest first.
	GetUserContent(ctx context.Context, userID string, q ContentQuery) ([]profile.HistoryItem, error)

	// Report files a report on content, surfacing it in the mod queue.
	Report(ctx context.Context, contentID, reason string) error

	// Remove removes content as a moderator.
	Remove(ctx context.Context, contentID string) error

	// SubmitComment posts a reply under the given content. Returns the new
	// comment ID.
	SubmitComment(ctx context.Context, parentID, body string) (string, error)

	// AddModNote attaches a moderator note to a user.
	AddModNote(ctx context.Context, subreddit, userID, note string) error

	// ModLogAdd records an entry in the community moderation log.
	ModLogAdd(ctx context.Context, subreddit, action, targetID, details string) error
}
