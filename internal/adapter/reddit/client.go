// Package reddit implements the platform port against the Reddit data API.
// All calls go through the shared rate limiter and circuit breaker; 429
// responses surface as domain.ErrRateLimited so callers can retry with
// backoff.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/ModForge/internal/domain"
	"github.com/Strob0t/ModForge/internal/domain/content"
	"github.com/Strob0t/ModForge/internal/domain/profile"
	"github.com/Strob0t/ModForge/internal/port/platform"
	"github.com/Strob0t/ModForge/internal/resilience"
)

const defaultBaseURL = "https://oauth.reddit.com"

// maxContentLimit caps GetUserContent listings per the API's page size.
const maxContentLimit = 100

// Client implements platform.Client via the Reddit OAuth API.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *resilience.Limiter
	breaker    *resilience.Breaker
	maxRetries int
	now        func() time.Time // for testing account age math
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (for tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithLimiter attaches a shared rate limiter to all outgoing calls.
func WithLimiter(l *resilience.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker attaches a circuit breaker to all outgoing calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithMaxRetries sets how many times rate-limited calls are retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a Reddit API client.
func NewClient(token, userAgent string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// thing is Reddit's generic typed wrapper.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"` // fullname, t3_*
	AuthorID    string  `json:"author_fullname"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	Edited      any     `json:"edited"` // false or edit timestamp
	RemovedBy   string  `json:"removed_by_category"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	Body        string  `json:"body"`    // comments only
	LinkID      string  `json:"link_id"` // comments only
}

type userData struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CreatedUTC      float64 `json:"created_utc"`
	CommentKarma    int     `json:"comment_karma"`
	LinkKarma       int     `json:"link_karma"`
	HasVerifiedMail bool    `json:"has_verified_email"`
	IsMod           bool    `json:"is_mod"`
	IsGold          bool    `json:"is_gold"`
	Verified        bool    `json:"verified"`
}

// GetPostByID fetches one submission by fullname (t3_*).
func (c *Client) GetPostByID(ctx context.Context, id string) (*platform.Post, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/info?id="+url.QueryEscape(fullname("t3", id)), nil)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	pd, err := firstChild(data)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}

	return &platform.Post{
		ID:        pd.Name,
		AuthorID:  pd.AuthorID,
		Author:    pd.Author,
		Subreddit: pd.Subreddit,
		Title:     pd.Title,
		Body:      pd.SelfText,
		LinkURL:   linkURL(pd),
		IsEdited:  isEdited(pd.Edited),
		Removed:   pd.RemovedBy != "",
	}, nil
}

// GetCommentByID fetches one comment by fullname (t1_*).
func (c *Client) GetCommentByID(ctx context.Context, id string) (*platform.Comment, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/info?id="+url.QueryEscape(fullname("t1", id)), nil)
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}
	pd, err := firstChild(data)
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}

	return &platform.Comment{
		ID:        pd.Name,
		PostID:    pd.LinkID,
		AuthorID:  pd.AuthorID,
		Author:    pd.Author,
		Subreddit: pd.Subreddit,
		Body:      pd.Body,
		IsEdited:  isEdited(pd.Edited),
		Removed:   pd.RemovedBy != "",
	}, nil
}

// GetUserByID fetches account facts. Reddit's user endpoints key on the
// username, so userID here is the account name.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*profile.UserProfile, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/user/"+url.PathEscape(userID)+"/about", nil)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	var t thing
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	var ud userData
	if err := json.Unmarshal(t.Data, &ud); err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	created := time.Unix(int64(ud.CreatedUTC), 0)
	return &profile.UserProfile{
		UserID:         ud.ID,
		Username:       ud.Name,
		AccountAgeDays: int(c.now().Sub(created).Hours() / 24),
		CommentKarma:   ud.CommentKarma,
		PostKarma:      ud.LinkKarma,
		TotalKarma:     ud.CommentKarma + ud.LinkKarma,
		EmailVerified:  ud.HasVerifiedMail,
		IsModerator:    ud.IsMod,
		HasPremium:     ud.IsGold,
		IsVerified:     ud.Verified,
		FetchedAt:      c.now(),
	}, nil
}

// GetUserContent lists a user's recent posts and comments, newest first.
func (c *Client) GetUserContent(ctx context.Context, userID string, q platform.ContentQuery) ([]profile.HistoryItem, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxContentLimit {
		limit = maxContentLimit
	}
	path := fmt.Sprintf("/user/%s/overview?limit=%d&sort=new", url.PathEscape(userID), limit)

	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get user content %s: %w", userID, err)
	}

	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("get user content %s: %w", userID, err)
	}

	var items []profile.HistoryItem
	for _, child := range l.Data.Children {
		var pd postData
		if err := json.Unmarshal(child.Data, &pd); err != nil {
			continue
		}
		item := profile.HistoryItem{
			ID:        pd.Name,
			Subreddit: pd.Subreddit,
			Score:     pd.Score,
			CreatedAt: time.Unix(int64(pd.CreatedUTC), 0),
		}
		switch child.Kind {
		case "t3":
			item.Kind = string(content.KindPost)
			item.Content = strings.TrimSpace(pd.Title + " " + pd.SelfText)
		case "t1":
			item.Kind = string(content.KindComment)
			item.Content = pd.Body
		default:
			continue
		}
		if q.Kind != "" && item.Kind != string(q.Kind) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Report files a report on content, surfacing it in the mod queue.
func (c *Client) Report(ctx context.Context, contentID, reason string) error {
	form := url.Values{"thing_id": {contentID}, "reason": {reason}}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/report", form); err != nil {
		return fmt.Errorf("report %s: %w", contentID, err)
	}
	return nil
}

// Remove removes content as a moderator.
func (c *Client) Remove(ctx context.Context, contentID string) error {
	form := url.Values{"id": {contentID}, "spam": {"false"}}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/remove", form); err != nil {
		return fmt.Errorf("remove %s: %w", contentID, err)
	}
	return nil
}

// SubmitComment posts a reply under the given content.
func (c *Client) SubmitComment(ctx context.Context, parentID, body string) (string, error) {
	form := url.Values{"thing_id": {parentID}, "text": {body}, "api_type": {"json"}}
	data, err := c.doRequest(ctx, http.MethodPost, "/api/comment", form)
	if err != nil {
		return "", fmt.Errorf("comment on %s: %w", parentID, err)
	}

	var resp struct {
		JSON struct {
			Data struct {
				Things []thing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("comment on %s: %w", parentID, err)
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("comment on %s: empty response", parentID)
	}
	var pd postData
	if err := json.Unmarshal(resp.JSON.Data.Things[0].Data, &pd); err != nil {
		return "", fmt.Errorf("comment on %s: %w", parentID, err)
	}
	return pd.Name, nil
}

// AddModNote attaches a moderator note to a user.
func (c *Client) AddModNote(ctx context.Context, subreddit, userID, note string) error {
	form := url.Values{
		"subreddit": {subreddit},
		"user":      {userID},
		"note":      {note},
		"label":     {"BOT_BAN"},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/mod/notes", form); err != nil {
		return fmt.Errorf("mod note for %s: %w", userID, err)
	}
	return nil
}

// ModLogAdd records an entry in the community moderation log.
func (c *Client) ModLogAdd(ctx context.Context, subreddit, action, targetID, details string) error {
	form := url.Values{
		"subreddit": {subreddit},
		"action":    {action},
		"target":    {targetID},
		"details":   {details},
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/mod/log", form); err != nil {
		return fmt.Errorf("mod log %s: %w", action, err)
	}
	return nil
}

// doRequest runs one API call through the limiter, the breaker, and the
// rate-limit retry loop.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var result []byte

	call := func() error {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return err
			}
		}

		attempt := func() error {
			var bodyReader io.Reader
			if form != nil {
				bodyReader = strings.NewReader(form.Encode())
			}

			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("User-Agent", c.userAgent)
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}
			if form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("http request: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("%s %s: %w", method, path, domain.ErrRateLimited)
			case resp.StatusCode == http.StatusNotFound:
				return fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
			case resp.StatusCode >= 400:
				return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
			}

			result = data
			return nil
		}

		if c.breaker != nil {
			return c.breaker.Execute(attempt)
		}
		return attempt()
	}

	return result, resilience.WithRetry(ctx, c.maxRetries, call)
}

func firstChild(data []byte) (*postData, error) {
	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if len(l.Data.Children) == 0 {
		return nil, domain.ErrNotFound
	}
	var pd postData
	if err := json.Unmarshal(l.Data.Children[0].Data, &pd); err != nil {
		return nil, err
	}
	return &pd, nil
}

func fullname(prefix, id string) string {
	if strings.HasPrefix(id, prefix+"_") {
		return id
	}
	return prefix + "_" + id
}

func linkURL(pd *postData) string {
	if pd.IsSelf {
		return ""
	}
	return pd.URL
}

// isEdited handles Reddit's edited field, which is false or a timestamp.
func isEdited(v any) bool {
	b, ok := v.(bool)
	return !ok || b
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
