package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/temoto/robotstxt"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

const maxFeedBytes = 10 << 20

// Options tunes a Fetcher.
type Options struct {
	MaxItems      int
	Timeout       time.Duration
	UserAgent     string
	RespectRobots bool
	Retry         retry.Policy
}

// StatusError reports a non-success HTTP status from a feed host.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// Fetcher validates and downloads syndication feeds (RSS, Atom, JSON Feed).
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets one with opts.Timeout.
func NewFetcher(client *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "FeedRelay/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger,
		robots: map[string]*robotstxt.RobotsData{},
	}
}

// Fetch returns up to MaxItems entries of src. Broken or unreachable-by-status
// feeds yield FetchInvalid; only exhausted transient failures return an error.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) (domain.FetchResult, error) {
	u, reason := validateURL(src.FeedURL)
	if reason != "" {
		return invalid(reason), nil
	}

	if f.opts.RespectRobots && !f.allowedByRobots(ctx, u) {
		return invalid("disallowed by robots.txt"), nil
	}

	if err := f.head(ctx, u.String()); err != nil {
		if retry.IsPermanent(err) {
			return invalid(err.Error()), nil
		}
		return domain.FetchResult{}, fmt.Errorf("validate %s: %w", src.FeedURL, err)
	}

	body, err := retry.Do(ctx, f.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, u.String())
	})
	if err != nil {
		if retry.IsPermanent(err) {
			return invalid(err.Error()), nil
		}
		return domain.FetchResult{}, fmt.Errorf("download %s: %w", src.FeedURL, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return invalid(fmt.Sprintf("parse feed: %v", err)), nil
	}
	if len(parsed.Items) == 0 {
		return invalid("feed has no entries"), nil
	}

	entries := make([]domain.FeedEntry, 0, min(len(parsed.Items), f.opts.MaxItems))
	for _, item := range parsed.Items {
		if len(entries) == f.opts.MaxItems {
			break
		}
		if item == nil {
			continue
		}
		entries = append(entries, toEntry(item))
	}

	f.logger.Debug("feed fetched", "source", src.Name, "entries", len(entries), "available", len(parsed.Items))
	return domain.FetchResult{Status: domain.FetchOK, Entries: entries}, nil
}

// Probe performs the lightweight reachability check used by the health monitor.
func (f *Fetcher) Probe(ctx context.Context, feedURL string) error {
	u, reason := validateURL(feedURL)
	if reason != "" {
		return errors.New(reason)
	}
	return f.head(ctx, u.String())
}

func (f *Fetcher) head(ctx context.Context, target string) error {
	return retry.Run(ctx, f.opts.Retry, func(ctx context.Context) error {
		resp, err := f.do(ctx, http.MethodHead, target)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	})
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	resp, err := f.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// do issues one request under the per-request timeout and classifies the status:
// 5xx stays retryable, other statuses >= 400 are permanent.
func (f *Fetcher) do(ctx context.Context, method, target string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)

	req, err := http.NewRequestWithContext(reqCtx, method, target, nil)
	if err != nil {
		cancel()
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_ = resp.Body.Close()
		cancel()
		statusErr := &StatusError{URL: target, Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (f *Fetcher) allowedByRobots(ctx context.Context, u *url.URL) bool {
	data := f.robotsFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), f.opts.UserAgent)
}

func (f *Fetcher) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	f.robotsMu.Lock()
	data, ok := f.robots[key]
	f.robotsMu.Unlock()
	if ok {
		return data
	}

	resp, err := f.do(ctx, http.MethodGet, key+"/robots.txt")
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Code >= http.StatusInternalServerError {
			f.logger.Debug("robots.txt unavailable", "host", u.Host, "error", err)
			return nil
		}
		// 4xx means no restrictions
		data, _ = robotstxt.FromStatusAndBytes(statusErr.Code, nil)
	} else {
		data, err = robotstxt.FromResponse(resp)
		_ = resp.Body.Close()
		if err != nil {
			f.logger.Debug("robots.txt unparsable", "host", u.Host, "error", err)
			data = nil
		}
	}

	f.robotsMu.Lock()
	f.robots[key] = data
	f.robotsMu.Unlock()
	return data
}

func validateURL(raw string) (*url.URL, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Sprintf("malformed url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Sprintf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, "url has no host"
	}
	return u, ""
}

func invalid(reason string) domain.FetchResult {
	return domain.FetchResult{Status: domain.FetchInvalid, Reason: reason}
}

func toEntry(item *gofeed.Item) domain.FeedEntry {
	entry := domain.FeedEntry{
		Title:   item.Title,
		Link:    item.Link,
		Summary: item.Description,
		Content: item.Content,
	}
	if entry.Link == "" && len(item.Links) > 0 {
		entry.Link = item.Links[0]
	}
	if entry.Summary == "" {
		entry.Summary = item.Content
	}
	switch {
	case item.PublishedParsed != nil:
		entry.PublishedAt = item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.PublishedAt = item.UpdatedParsed
	}
	return entry
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
