package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FeedRelay/internal/dedup"
	"FeedRelay/internal/domain"
	"FeedRelay/internal/logging"
	"FeedRelay/internal/retry"
	"FeedRelay/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeFetcher struct {
	mu       sync.Mutex
	results  map[string]domain.FetchResult
	errs     map[string]error
	probeErr map[string][]error
	probes   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results:  map[string]domain.FetchResult{},
		errs:     map[string]error{},
		probeErr: map[string][]error{},
		probes:   map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, src domain.Source) (domain.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[src.FeedURL]; err != nil {
		return domain.FetchResult{}, err
	}
	if res, ok := f.results[src.FeedURL]; ok {
		return res, nil
	}
	return domain.FetchResult{Status: domain.FetchInvalid, Reason: "unknown feed"}, nil
}

// Probe pops the next scripted result for feedURL; an empty script means healthy.
func (f *fakeFetcher) Probe(_ context.Context, feedURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[feedURL]++
	script := f.probeErr[feedURL]
	if len(script) == 0 {
		return nil
	}
	f.probeErr[feedURL] = script[1:]
	return script[0]
}

func (f *fakeFetcher) probeCount(feedURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes[feedURL]
}

type fakePublisher struct {
	mu       sync.Mutex
	requests []domain.PublishRequest
	failures map[string]error
	next     int
}

func (p *fakePublisher) Publish(_ context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[req.Title]; err != nil {
		return domain.PublishResult{}, err
	}
	p.next++
	p.requests = append(p.requests, req)
	return domain.PublishResult{
		ExternalID:  fmt.Sprintf("%d", p.next),
		ExternalURL: fmt.Sprintf("https://blog.example.com/?p=%d", p.next),
	}, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	tripped []domain.Source
}

func (n *fakeNotifier) SourceTripped(_ context.Context, src domain.Source, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tripped = append(n.tripped, src)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tripped)
}

var errUnreachable = errors.New("dial tcp: connection refused")

func testRegistry(store *testutil.MemoryStore, notifier *fakeNotifier) *SourceRegistry {
	deps := RegistryDeps{
		Repository:       store,
		Logger:           logging.Discard(),
		Now:              clock,
		FailureThreshold: 3,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return NewSourceRegistry(deps)
}

func testEngine(store *testutil.MemoryStore) *dedup.Engine {
	return dedup.NewEngine(dedup.EngineDeps{
		Repository: store,
		Retry:      retry.Policy{MaxRetries: 1},
		Config: dedup.Config{
			LocalThreshold: 0.8,
			Window:         7 * 24 * time.Hour,
			WindowLimit:    100,
			CharThreshold:  250,
		},
		Logger: logging.Discard(),
		Now:    clock,
	})
}

func testSource(name, feedURL string) domain.Source {
	return domain.Source{ID: SourceID("", feedURL), Name: name, FeedURL: feedURL, Niche: "tecnologia", Active: true}
}

func fixedRunID() string { return "run-1" }
