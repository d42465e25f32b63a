// Package telegram sends source circuit alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than this many characters.
	maxMessageRunes = 4096
	maxErrorRunes   = 500
)

// APIError is a non-OK reply from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %d: %s", e.Code, e.Description)
}

// Notifier posts operator alerts to one chat.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	policy   retry.Policy
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. Sends are retried with policy.
func NewNotifier(botToken, chatID string, policy retry.Policy) *Notifier {
	return &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		policy:   policy,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithAPIBase points the notifier at another Bot API server.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	return n
}

// SourceTripped announces a disabled source with the command that re-enables it.
func (n *Notifier) SourceTripped(ctx context.Context, src domain.Source, threshold int) error {
	return n.send(ctx, tripMessage(src, threshold))
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return retry.Permanent(fmt.Errorf("telegram notifier misconfigured"))
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	return retry.Run(ctx, n.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}

		apiErr := &APIError{Code: resp.StatusCode, Description: resp.Status}
		var reply apiResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &reply) == nil && reply.Description != "" {
			apiErr.Description = reply.Description
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return retry.Permanent(apiErr)
	})
}

func tripMessage(src domain.Source, threshold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Source disabled:</b> %s\n", html.EscapeString(src.Name))
	fmt.Fprintf(&b, "Niche: %s\n", html.EscapeString(src.Niche))
	fmt.Fprintf(&b, "Feed: %s\n", html.EscapeString(src.FeedURL))
	fmt.Fprintf(&b, "Failures: %d/%d\n", src.ConsecutiveFailures, threshold)
	if src.LastCheckedAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", time.Unix(*src.LastCheckedAt, 0).UTC().Format(time.RFC3339))
	}
	if src.LastError != "" {
		fmt.Fprintf(&b, "Last error: <code>%s</code>\n", html.EscapeString(truncate(src.LastError, maxErrorRunes)))
	}
	fmt.Fprintf(&b, "Re-enable: <code>feedrelay sources enable %s</code>", html.EscapeString(src.ID))
	return truncate(b.String(), maxMessageRunes)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
