// Package openai implements the llm.Provider port against the OpenAI chat
// completions API, and the safety classifier against the moderation API.
// Compatible endpoints (any server speaking this API) are supported via a
// custom base URL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/ModForge/internal/domain"
	"github.com/Strob0t/ModForge/internal/port/llm"
)

const defaultBaseURL = "https://api.openai.com"

// Client implements llm.Provider via the chat completions API.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an OpenAI provider. A non-empty baseURL selects a
// compatible endpoint; name distinguishes it in cost records.
func NewClient(name, apiKey, model, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if name == "" {
		name = "openai"
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Model() string { return c.model }

type chatRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete runs one completion against the chat completions API.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c.apiKey == "" {
		return nil, llm.ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s marshal: %w", c.name, err)
	}

	data, err := c.post(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("%s unmarshal: %w", c.name, err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", c.name)
	}

	return &llm.Response{
		Text:      cr.Choices[0].Message.Content,
		Model:     cr.Model,
		TokensIn:  cr.Usage.PromptTokens,
		TokensOut: cr.Usage.CompletionTokens,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s call: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read: %w", c.name, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", c.name, domain.ErrRateLimited)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: status %d: %s", c.name, resp.StatusCode, data)
	}
	return data, nil
}
