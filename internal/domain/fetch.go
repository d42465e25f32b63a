package domain

// FetchStatus tells whether a feed produced usable entries.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchInvalid FetchStatus = "invalid"
)

// FetchResult is the outcome of fetching one source. An invalid feed is a normal
// outcome, not an error.
type FetchResult struct {
	Status  FetchStatus
	Reason  string
	Entries []FeedEntry
}
