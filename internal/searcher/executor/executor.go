// Package executor runs parsed queries against the ticket repository behind
// a circuit breaker and a per-search timeout.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/config"
	apperrors "github.com/bileto/ticket-search/pkg/errors"
	"github.com/bileto/ticket-search/pkg/resilience"
	"github.com/bileto/ticket-search/pkg/tracing"
)

// SearchResult is the response body of a ticket search. It is also the
// value stored in the query cache.
type SearchResult struct {
	Query     string           `json:"query"`
	Canonical string           `json:"canonical"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
	Tickets   []tickets.Ticket `json:"tickets"`
}

type Executor struct {
	repo    tickets.Repository
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// New wraps repo. onStateChange, when not nil, observes breaker
// transitions.
func New(repo tickets.Repository, cfg config.SearchConfig, onStateChange func(name string, to resilience.State)) *Executor {
	return &Executor{
		repo: repo,
		breaker: resilience.NewCircuitBreaker("ticket-repository", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			ResetTimeout:     cfg.BreakerReset,
			IsFailure:        isBackendFailure,
			OnStateChange:    onStateChange,
		}),
		timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// isBackendFailure keeps rejected queries and cancelled requests from
// tripping the breaker.
func isBackendFailure(err error) bool {
	return err != nil && !apperrors.IsUserError(err) && !errors.Is(err, context.Canceled)
}

func (e *Executor) Execute(ctx context.Context, raw string, q *query.Query, opts tickets.SearchOptions) (*SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "repository.search")
	defer span.End()

	var page *tickets.Page
	err := e.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, e.timeout, "ticket search", func(ctx context.Context) error {
			var err error
			page, err = e.repo.Search(ctx, q, opts)
			return err
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	default:
		return nil, err
	}

	span.SetAttr("total", page.Total)
	e.logger.Debug("query executed",
		"canonical", q.String(),
		"total", page.Total,
		"returned", len(page.Tickets),
	)
	return &SearchResult{
		Query:     raw,
		Canonical: q.String(),
		Total:     page.Total,
		Limit:     page.Limit,
		Offset:    page.Offset,
		Tickets:   page.Tickets,
	}, nil
}

// Ping checks the repository for the readiness probe.
func (e *Executor) Ping(ctx context.Context) error {
	return e.repo.Ping(ctx)
}

func (e *Executor) BreakerState() resilience.State {
	return e.breaker.GetState()
}
