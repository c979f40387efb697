package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/postlane/postlane/config"
)

// ErrSourceUnavailable marks network failures and 5xx responses from the
// member source; a page fetch failure aborts the whole sync run.
var ErrSourceUnavailable = errors.New("member source unavailable")

// RawMember is one record as the membership platform exposes it. Email is
// required; names may arrive split or only as a display name.
type RawMember struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"name"`
}

// Pagination mirrors the source's page envelope.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
}

// MemberPage is one page of members plus pagination metadata.
type MemberPage struct {
	Data       []RawMember `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// MemberSource reads paginated member lists from the membership platform.
type MemberSource interface {
	FetchPage(ctx context.Context, sourceAudienceID string, page, perPage int) (*MemberPage, error)
}

// MembershipClient implements MemberSource over the platform's HTTP API.
type MembershipClient struct {
	config *config.SourceConfig
	client *http.Client
}

// NewMembershipClient creates a new member source client instance
func NewMembershipClient(cfg *config.SourceConfig) *MembershipClient {
	return &MembershipClient{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *MembershipClient) FetchPage(ctx context.Context, sourceAudienceID string, page, perPage int) (*MemberPage, error) {
	u, err := url.Parse(c.config.BaseURL + "/groups/" + sourceAudienceID + "/members")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http status %d", ErrSourceUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("member source http status %d: %s", resp.StatusCode, string(b))
	}

	var out MemberPage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode member page: %w", err)
	}
	return &out, nil
}
