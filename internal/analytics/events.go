package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventInvalidQuery EventType = "invalid_query"
	EventSearchFailed EventType = "search_failed"
)

// SearchEvent describes one call to the search endpoint. Canonical and
// Qualifiers are empty when the query did not parse; ErrorKind is then one
// of lex, syntax or semantic.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Canonical  string    `json:"canonical,omitempty"`
	Qualifiers []string  `json:"qualifiers,omitempty"`
	Conditions int       `json:"conditions"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// Key is the partition key of the event: its canonical query, or the raw
// input when the query is invalid.
func (e SearchEvent) Key() string {
	if e.Canonical != "" {
		return e.Canonical
	}
	return e.Query
}
