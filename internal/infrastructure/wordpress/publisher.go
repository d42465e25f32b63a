// Package wordpress publishes items through the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

// APIError reports a rejected request along with the body WordPress returned.
type APIError struct {
	Code   int
	Status string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wordpress error %s: %s", e.Status, e.Body)
}

// Publisher creates posts with an application password.
type Publisher struct {
	endpoint    string
	user        string
	appPassword string
	httpClient  *http.Client
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher builds a client for the site whose REST base is baseURL
// (for example https://blog.example.com/wp-json/wp/v2).
func NewPublisher(baseURL, user, appPassword string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Publisher{
		endpoint:    strings.TrimRight(baseURL, "/") + "/posts",
		user:        user,
		appPassword: appPassword,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type postPayload struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Status     string            `json:"status"`
	Categories []int             `json:"categories"`
	Excerpt    string            `json:"excerpt"`
	Meta       map[string]string `json:"meta,omitempty"`
}

type postResponse struct {
	ID   json.Number `json:"id"`
	Link string      `json:"link"`
}

// Publish creates a published post. 5xx and 429 replies stay retryable.
func (p *Publisher) Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	if p.user == "" || p.appPassword == "" {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("wordpress publisher misconfigured"))
	}

	body, err := json.Marshal(postPayload{
		Title:      req.Title,
		Content:    req.HTMLBody,
		Status:     "publish",
		Categories: []int{req.CategoryID},
		Excerpt:    req.Excerpt,
		Meta:       req.Meta,
	})
	if err != nil {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("marshal post: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	httpReq.SetBasicAuth(p.user, p.appPassword)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("create post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(payload))}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return domain.PublishResult{}, apiErr
		}
		return domain.PublishResult{}, retry.Permanent(apiErr)
	}

	var created postResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("decode created post: %w", err))
	}
	if created.ID == "" {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("created post has no id"))
	}
	if _, err := strconv.ParseInt(created.ID.String(), 10, 64); err != nil {
		return domain.PublishResult{}, retry.Permanent(fmt.Errorf("created post id %q: %w", created.ID, err))
	}

	return domain.PublishResult{ExternalID: created.ID.String(), ExternalURL: created.Link}, nil
}
