// Package modmail implements a notifier.Notifier that delivers operator
// notifications as Reddit private messages.
package modmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/ModForge/internal/port/notifier"
)

const (
	providerName   = "modmail"
	defaultBaseURL = "https://oauth.reddit.com"
)

// Notifier sends notifications to a fixed set of recipients via /api/compose.
type Notifier struct {
	baseURL    string
	token      string
	userAgent  string
	recipients []string
	httpClient *http.Client
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimSuffix(u, "/") }
}

// NewNotifier creates a modmail notifier for the given recipients.
func NewNotifier(token, userAgent string, recipients []string, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL:    defaultBaseURL,
		token:      token,
		userAgent:  userAgent,
		recipients: recipients,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Name() string { return providerName }

// Send delivers the notification to every recipient. Delivery stops at the
// first failure so a retry does not double-send to earlier recipients.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.token == "" || len(n.recipients) == 0 {
		return notifier.ErrNotConfigured
	}

	subject := notification.Title
	if notification.Level != "" && notification.Level != "info" {
		subject = fmt.Sprintf("[%s] %s", strings.ToUpper(notification.Level), notification.Title)
	}
	body := notification.Message
	if notification.Source != "" {
		body += "\n\n---\nSource: " + notification.Source
	}

	for _, to := range n.recipients {
		if err := n.compose(ctx, to, subject, body); err != nil {
			return fmt.Errorf("modmail to %s: %w", to, err)
		}
	}
	return nil
}

func (n *Notifier) compose(ctx context.Context, to, subject, body string) error {
	form := url.Values{
		"api_type": {"json"},
		"to":       {to},
		"subject":  {subject},
		"text":     {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/api/compose", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reddit API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
