// Package textgen talks to an OpenAI-compatible chat completions API (OpenRouter by default)
// to produce post ideas, post drafts and channel reports.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"contentplan-bot/internal/config"

	"github.com/cenkalti/backoff/v4"
)

const maxResponseSize = 1 << 20

// Client is a chat completions client.
type Client struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	model       string
	siteURL     string
	appName     string
	maxAttempts uint64
	backoffBase time.Duration
}

// NewClient creates a client from the LLM settings.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		url:         buildURL(cfg.BaseURL),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		siteURL:     cfg.SiteURL,
		appName:     cfg.AppName,
		maxAttempts: 3,
		backoffBase: 2 * time.Second,
	}
}

// buildURL constructs the chat completions endpoint.
func buildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends a single user prompt and returns the first choice, retrying transient failures.
func (c *Client) complete(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", &Error{Op: op, Err: fmt.Errorf("build request body: %w", err)}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoffBase
	policy.MaxInterval = 30 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxAttempts-1), ctx)

	attempt := 0
	text, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		text, err := c.doRequest(ctx, op, body)
		if err == nil {
			return text, nil
		}
		if !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		log.Printf("[TextGen:%s] Attempt %d failed, retrying: %v", op, attempt, err)
		return "", err
	}, b)
	if err != nil {
		var tgErr *Error
		if !errors.As(err, &tgErr) {
			// context cancelled while waiting between attempts
			err = &Error{Op: op, Transient: true, Err: err}
		}
		return "", err
	}
	return text, nil
}

func (c *Client) doRequest(ctx context.Context, op string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Op: op, Err: fmt.Errorf("create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// OpenRouter attribution
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.appName != "" {
		httpReq.Header.Set("X-Title", c.appName)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Op: op, Transient: true, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", &Error{Op: op, Transient: true, Err: fmt.Errorf("read response body: %w", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(op, httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: op, Err: errors.New("response has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
