package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"FeedRelay/internal/domain"
	"FeedRelay/internal/ports"
	"FeedRelay/internal/retry"
)

// Outcome is the admission verdict for one candidate.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeRejectedDuplicate Outcome = "rejected_duplicate"
	OutcomeExisting          Outcome = "existing"
	OutcomeRejectedInvalid   Outcome = "rejected_invalid"
)

// Candidate is a normalized item awaiting admission.
type Candidate struct {
	Title   string
	Summary string
	Link    string
}

// Decision carries the verdict plus the diagnostics that produced it.
type Decision struct {
	Outcome               Outcome
	ID                    string
	LocalNearDuplicate    bool
	ExternalNearDuplicate bool
	MatchedID             string
	Similarity            float64
}

// Approved reports whether the item passed every gate.
func (d Decision) Approved() bool {
	return d.Outcome == OutcomeAccepted
}

// Config bounds the near-duplicate scan.
type Config struct {
	LocalThreshold float64
	Window         time.Duration
	WindowLimit    int
	CharThreshold  int
}

// EngineDeps wires the driven adapters used by the admission gate.
type EngineDeps struct {
	Repository ports.NewsRepository
	Checker    ports.PlagiarismChecker
	Retry      retry.Policy
	Config     Config
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine decides whether a freshly fetched item may be stored as approved.
type Engine struct {
	repo    ports.NewsRepository
	checker ports.PlagiarismChecker
	policy  retry.Policy
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine constructs the admission gate.
func NewEngine(deps EngineDeps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:    deps.Repository,
		checker: deps.Checker,
		policy:  deps.Retry,
		cfg:     deps.Config,
		logger:  logger,
		now:     now,
	}
}

// Evaluate runs the exact, local and external gates in order.
// The returned error is reserved for store failures.
func (e *Engine) Evaluate(ctx context.Context, c Candidate) (Decision, error) {
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Link) == "" {
		return Decision{Outcome: OutcomeRejectedInvalid}, nil
	}

	d := Decision{ID: ContentID(c.Title, c.Summary)}

	_, found, err := e.repo.Get(ctx, d.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup %s: %w", d.ID, err)
	}
	if found {
		d.Outcome = OutcomeExisting
		return d, nil
	}

	if err := e.checkWindow(ctx, c, &d); err != nil {
		return Decision{}, err
	}

	if !d.LocalNearDuplicate && e.checker != nil && utf8.RuneCountInString(c.Summary) > e.cfg.CharThreshold {
		dup, err := retry.Do(ctx, e.policy, func(ctx context.Context) (bool, error) {
			return e.checker.Check(ctx, c.Summary)
		})
		if err != nil {
			e.logger.Warn("external duplicate check failed, admitting", "id", d.ID, "error", err)
		}
		d.ExternalNearDuplicate = dup
	}

	if d.LocalNearDuplicate || d.ExternalNearDuplicate {
		d.Outcome = OutcomeRejectedDuplicate
	} else {
		d.Outcome = OutcomeAccepted
	}
	return d, nil
}

func (e *Engine) checkWindow(ctx context.Context, c Candidate, d *Decision) error {
	filter := domain.NewsFilter{NewestFirst: true}
	if e.cfg.Window > 0 {
		filter.InsertedSince = e.now().Add(-e.cfg.Window).Unix()
	}

	recent, err := e.repo.Scan(ctx, filter, e.cfg.WindowLimit)
	if err != nil {
		return fmt.Errorf("scan window: %w", err)
	}

	title := Canonical(c.Title)
	summary := Canonical(c.Summary)
	for _, item := range recent {
		score := Similarity(title, Canonical(item.Title))
		if summary != "" {
			if other := Canonical(item.Summary); other != "" {
				score = max(score, Similarity(summary, other))
			}
		}
		if score > d.Similarity {
			d.Similarity = score
			d.MatchedID = item.ID
		}
		if score > e.cfg.LocalThreshold {
			d.LocalNearDuplicate = true
			return nil
		}
	}
	return nil
}
