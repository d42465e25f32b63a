package domain

import "time"

// RunStats summarizes one ingestion invocation. It is never persisted.
type RunStats struct {
	RunID            string        `json:"run_id"`
	Saved            int           `json:"saved"`
	Existing         int           `json:"existing"`
	Duplicates       int           `json:"duplicates"`
	Invalid          int           `json:"invalid"`
	Errors           int           `json:"errors"`
	SourcesProcessed int           `json:"sources_processed"`
	SourcesInvalid   int           `json:"sources_invalid"`
	SourcesFailed    int           `json:"sources_failed"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// PublishStats summarizes one publish invocation.
type PublishStats struct {
	RunID      string        `json:"run_id"`
	Published  int           `json:"published"`
	Duplicates int           `json:"duplicates"`
	Errors     int           `json:"errors"`
	Disabled   bool          `json:"disabled,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// HealthReport is the outcome of probing all sources once.
type HealthReport struct {
	Healthy   int           `json:"healthy"`
	Unhealthy int           `json:"unhealthy"`
	Skipped   int           `json:"skipped"`
	Tripped   []string      `json:"tripped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SweepReport is the outcome of one retention sweep.
type SweepReport struct {
	Deleted  int           `json:"deleted_count"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// PublishRequest is what the external publish target receives.
type PublishRequest struct {
	Title      string
	HTMLBody   string
	CategoryID int
	Excerpt    string
	Meta       map[string]string
}

// PublishResult identifies the created remote post.
type PublishResult struct {
	ExternalID  string
	ExternalURL string
}
