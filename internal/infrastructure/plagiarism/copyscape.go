// Package plagiarism holds the external near-duplicate checkers.
package plagiarism

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

// maxCheckText is the text limit accepted by the Copyscape API.
const maxCheckText = 10000

// StatusError reports a non-success HTTP status from a checker.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

// classify keeps 5xx and 429 retryable; any other status is permanent.
func classify(err *StatusError) error {
	if err.Code >= http.StatusInternalServerError || err.Code == http.StatusTooManyRequests {
		return err
	}
	return retry.Permanent(err)
}

// Copyscape checks text against the web through the Copyscape premium API.
type Copyscape struct {
	endpoint string
	user     string
	key      string
	client   *http.Client
}

var _ ports.PlagiarismChecker = (*Copyscape)(nil)

// NewCopyscape builds a checker for the given account.
func NewCopyscape(endpoint, user, key string, timeout time.Duration) *Copyscape {
	if endpoint == "" {
		endpoint = "https://www.copyscape.com/api/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Copyscape{
		endpoint: endpoint,
		user:     user,
		key:      key,
		client:   &http.Client{Timeout: timeout},
	}
}

type copyscapeResponse struct {
	Count int    `xml:"count"`
	Error string `xml:"error"`
}

// Check reports whether Copyscape found at least one page containing text.
func (c *Copyscape) Check(ctx context.Context, text string) (bool, error) {
	if c.user == "" || c.key == "" {
		return false, retry.Permanent(errors.New("copyscape credentials missing"))
	}

	form := url.Values{}
	form.Set("u", c.user)
	form.Set("k", c.key)
	form.Set("o", "csearch")
	form.Set("t", truncate(text, maxCheckText))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, classify(&StatusError{Code: resp.StatusCode, Status: resp.Status})
	}

	var parsed copyscapeResponse
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return false, fmt.Errorf("decode copyscape response: %w", err)
	}
	if parsed.Error != "" {
		return false, retry.Permanent(fmt.Errorf("copyscape: %s", parsed.Error))
	}
	return parsed.Count > 0, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
