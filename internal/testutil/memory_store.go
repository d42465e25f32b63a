// Package testutil holds in-memory adapters shared by use-case tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
)

// ErrNotFound is returned by updates against missing rows.
var ErrNotFound = errors.New("not found")

// MemoryStore implements the news and source repositories on maps.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]domain.NewsItem
	sources map[string]domain.Source

	PingErr   error
	PutErr    error
	UpdateErr error
	DeleteErr error

	Puts    int
	Updates int
}

var (
	_ ports.NewsRepository   = (*MemoryStore)(nil)
	_ ports.SourceRepository = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   map[string]domain.NewsItem{},
		sources: map[string]domain.Source{},
	}
}

// Seed stores items verbatim, bypassing conflict handling.
func (m *MemoryStore) Seed(items ...domain.NewsItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = it
	}
}

// Items returns a snapshot of every stored item.
func (m *MemoryStore) Items() []domain.NewsItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NewsItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) Get(_ context.Context, id string) (domain.NewsItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, item domain.NewsItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return false, m.PutErr
	}
	m.Puts++
	if _, ok := m.items[item.ID]; ok {
		return false, nil
	}
	m.items[item.ID] = item
	return true, nil
}

func (m *MemoryStore) UpdateFields(_ context.Context, id string, patch domain.NewsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	m.Updates++
	if patch.Published != nil {
		it.Published = *patch.Published
	}
	if patch.PublishedAt != nil {
		it.PublishedAt = patch.PublishedAt
	}
	if patch.ExternalRef != nil {
		it.ExternalRef = patch.ExternalRef
	}
	if patch.ExternalURL != nil {
		it.ExternalURL = patch.ExternalURL
	}
	if patch.Duplicate != nil {
		it.Duplicate = *patch.Duplicate
	}
	m.items[id] = it
	return nil
}

func (m *MemoryStore) Scan(_ context.Context, f domain.NewsFilter, limit int) ([]domain.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.NewsItem
	for _, it := range m.items {
		if f.InsertedSince > 0 && it.InsertedAt < f.InsertedSince {
			continue
		}
		if f.InsertedBefore > 0 && it.InsertedAt >= f.InsertedBefore {
			continue
		}
		if f.Approved != nil && it.Approved != *f.Approved {
			continue
		}
		if f.Published != nil && it.Published != *f.Published {
			continue
		}
		if f.Duplicate != nil && it.Duplicate != *f.Duplicate {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InsertedAt == out[j].InsertedAt {
			return out[i].ID < out[j].ID
		}
		if f.NewestFirst {
			return out[i].InsertedAt > out[j].InsertedAt
		}
		return out[i].InsertedAt < out[j].InsertedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

func (m *MemoryStore) ListSources(_ context.Context, f domain.SourceFilter) ([]domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Source
	for _, s := range m.sources {
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetSource(_ context.Context, id string) (domain.Source, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	return s, ok, nil
}

func (m *MemoryStore) UpsertSource(_ context.Context, src domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sources[src.ID]; ok {
		cur.Name = src.Name
		cur.FeedURL = src.FeedURL
		cur.Niche = src.Niche
		cur.Active = cur.Active && src.Active
		m.sources[src.ID] = cur
		return nil
	}
	m.sources[src.ID] = src
	return nil
}

func (m *MemoryStore) RecordSourceFailure(_ context.Context, id string, threshold int, reason string, at time.Time) (domain.Source, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return domain.Source{}, false, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if !s.Active {
		return s, false, nil
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= threshold {
		s.Active = false
	}
	s.LastError = reason
	ts := at.Unix()
	s.LastCheckedAt = &ts
	m.sources[id] = s
	return s, !s.Active, nil
}

func (m *MemoryStore) ResetSourceFailures(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	s.ConsecutiveFailures = 0
	s.LastError = ""
	ts := at.Unix()
	s.LastCheckedAt = &ts
	m.sources[id] = s
	return nil
}

func (m *MemoryStore) SetSourceActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	s.Active = active
	if active {
		s.ConsecutiveFailures = 0
		s.LastError = ""
	}
	m.sources[id] = s
	return nil
}
