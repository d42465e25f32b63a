package domain

// Source is a configured feed together with its circuit-breaker state.
type Source struct {
	ID                  string
	Name                string
	FeedURL             string
	Niche               string
	Active              bool
	ConsecutiveFailures int
	LastError           string
	LastCheckedAt       *int64
}

// SourceFilter narrows source listings.
type SourceFilter struct {
	Active *bool
	Niches []string
}

// Matches reports whether src passes the filter.
func (f SourceFilter) Matches(src Source) bool {
	if f.Active != nil && src.Active != *f.Active {
		return false
	}
	if len(f.Niches) == 0 {
		return true
	}
	for _, n := range f.Niches {
		if n == src.Niche {
			return true
		}
	}
	return false
}
