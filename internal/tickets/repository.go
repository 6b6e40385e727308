package tickets

import (
	"context"

	"github.com/bileto/ticket-search/internal/query"
)

// SearchOptions pages the result and names the acting user for @me.
type SearchOptions struct {
	Actor  int64
	Limit  int
	Offset int
}

// Page is one page of a search, ordered by most recent update first.
type Page struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository runs parsed queries against a ticket store.
type Repository interface {
	Search(ctx context.Context, q *query.Query, opts SearchOptions) (*Page, error)
	Ping(ctx context.Context) error
}
