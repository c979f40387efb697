package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/postlane/postlane/config"
)

// Sink error kinds. Callers classify retries with errors.Is.
var (
	// ErrSinkRateLimited marks a 429-class response; retryable after backoff.
	ErrSinkRateLimited = errors.New("sink rate limited")
	// ErrSinkUnavailable marks network failures and 5xx responses; retryable.
	ErrSinkUnavailable = errors.New("sink unavailable")
)

// EmailSinkClient is the write target for audiences, contacts and
// broadcasts. All operations are subject to the sink's own rate limit; the
// caller must hold a RateLimiter turn before each call.
type EmailSinkClient interface {
	CreateAudience(ctx context.Context, name string) (string, error)
	DeleteAudience(ctx context.Context, audienceID string) error
	CreateContact(ctx context.Context, audienceID, email, firstName, lastName string) (string, error)
	CreateBroadcast(ctx context.Context, p BroadcastParams) (string, error)
	SendBroadcast(ctx context.Context, broadcastID string) error
}

// BroadcastParams describes one outbound email creative addressed to an
// audience.
type BroadcastParams struct {
	AudienceID string
	From       string
	Subject    string
	HTML       string
	Text       string
	Name       string
}

// ResendClient implements EmailSinkClient against the Resend HTTP API.
type ResendClient struct {
	config *config.SinkConfig
	client *http.Client
}

// NewResendClient creates a new sink client instance
func NewResendClient(cfg *config.SinkConfig) *ResendClient {
	return &ResendClient{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *ResendClient) CreateAudience(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/audiences", map[string]any{"name": name}, &out)
	if err != nil {
		return "", fmt.Errorf("create audience: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create audience: empty id in response")
	}
	return out.ID, nil
}

func (c *ResendClient) DeleteAudience(ctx context.Context, audienceID string) error {
	if err := c.do(ctx, http.MethodDelete, "/audiences/"+audienceID, nil, nil); err != nil {
		return fmt.Errorf("delete audience %s: %w", audienceID, err)
	}
	return nil
}

func (c *ResendClient) CreateContact(ctx context.Context, audienceID, email, firstName, lastName string) (string, error) {
	payload := map[string]any{
		"email":        email,
		"unsubscribed": false,
	}
	if firstName != "" {
		payload["first_name"] = firstName
	}
	if lastName != "" {
		payload["last_name"] = lastName
	}
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/audiences/"+audienceID+"/contacts", payload, &out)
	if err != nil {
		return "", fmt.Errorf("create contact in audience %s: %w", audienceID, err)
	}
	return out.ID, nil
}

func (c *ResendClient) CreateBroadcast(ctx context.Context, p BroadcastParams) (string, error) {
	payload := map[string]any{
		"audience_id": p.AudienceID,
		"from":        p.From,
		"subject":     p.Subject,
		"html":        p.HTML,
		"text":        p.Text,
		"name":        p.Name,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/broadcasts", payload, &out); err != nil {
		return "", fmt.Errorf("create broadcast: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create broadcast: empty id in response")
	}
	return out.ID, nil
}

func (c *ResendClient) SendBroadcast(ctx context.Context, broadcastID string) error {
	if err := c.do(ctx, http.MethodPost, "/broadcasts/"+broadcastID+"/send", map[string]any{}, nil); err != nil {
		return fmt.Errorf("send broadcast %s: %w", broadcastID, err)
	}
	return nil
}

// do executes one sink API call and classifies the response status.
func (c *ResendClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http status %d", ErrSinkRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: http status %d", ErrSinkUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("sink http status %d: %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode sink response: %w", err)
		}
	}
	return nil
}
