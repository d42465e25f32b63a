package plagiarism

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

// HTTPChecker talks to a JSON duplicate-detection service.
type HTTPChecker struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.PlagiarismChecker = (*HTTPChecker)(nil)

// NewHTTPChecker creates a reusable HTTP client.
func NewHTTPChecker(endpoint, apiKey string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPChecker{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// Check sends the text and reports the service verdict.
func (c *HTTPChecker) Check(ctx context.Context, text string) (bool, error) {
	payload := map[string]any{"text": truncate(text, maxCheckText)}

	var resp struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := c.post(ctx, "/check", payload, &resp); err != nil {
		return false, err
	}
	return resp.Duplicate, nil
}

func (c *HTTPChecker) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if closeErr != nil {
			return fmt.Errorf("%w, close body: %v", classify(statusErr), closeErr)
		}
		return classify(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
