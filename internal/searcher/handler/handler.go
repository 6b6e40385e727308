// Package handler serves the ticket search HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bileto/ticket-search/internal/analytics"
	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/internal/searcher/cache"
	"github.com/bileto/ticket-search/internal/searcher/executor"
	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/config"
	apperrors "github.com/bileto/ticket-search/pkg/errors"
	"github.com/bileto/ticket-search/pkg/logger"
	"github.com/bileto/ticket-search/pkg/metrics"
	"github.com/bileto/ticket-search/pkg/tracing"
)

// ActorHeader carries the id of the Bileto user running the search. It is
// set by the Bileto front-end after authentication.
const ActorHeader = "X-Bileto-User"

type SearchExecutor interface {
	Execute(ctx context.Context, raw string, q *query.Query, opts tickets.SearchOptions) (*executor.SearchResult, error)
}

// Tracker receives one event per search. *analytics.Collector implements
// it.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	executor  SearchExecutor
	cache     *cache.QueryCache
	collector Tracker
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	cfg       config.SearchConfig
	logger    *slog.Logger
}

// New builds the handler. queryCache, collector and tracer may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, collector Tracker, m *metrics.Metrics, tracer *tracing.Tracer, cfg config.SearchConfig) *Handler {
	return &Handler{
		executor:  exec,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		tracer:    tracer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/tickets/search", h.Search)
	mux.HandleFunc("GET /api/v1/query/parse", h.Parse)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	raw := r.URL.Query().Get("q")
	ctx, span := h.tracer.Start(r.Context(), "ticket.search", logger.RequestID(r.Context()))
	defer h.tracer.Finish(span)
	log := logger.FromContext(ctx)

	opts, err := h.searchOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	q, err := h.parse(ctx, raw)
	if err != nil {
		h.rejectQuery(ctx, w, raw, start, err)
		return
	}

	var result *executor.SearchResult
	cacheStatus := "disabled"
	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, raw, q, opts)
	}
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, raw, q, opts, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute()
	}
	if err != nil {
		if apperrors.IsUserError(err) {
			h.rejectQuery(ctx, w, raw, start, err)
			return
		}
		log.Error("search failed", "query", raw, "error", err)
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.track(ctx, analytics.SearchEvent{
			Type:      analytics.EventSearchFailed,
			Query:     raw,
			Canonical: q.String(),
			ErrorKind: errorKind(err),
			LatencyMs: time.Since(start).Milliseconds(),
		})
		h.writeError(w, err)
		return
	}

	latency := time.Since(start)
	resultType := "hit"
	if result.Total == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(result.Tickets)))
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("total", result.Total)

	log.Info("search completed",
		"canonical", result.Canonical,
		"total", result.Total,
		"returned", len(result.Tickets),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, analytics.SearchEvent{
		Type:       analytics.EventSearch,
		Query:      raw,
		Canonical:  result.Canonical,
		Qualifiers: q.Qualifiers(),
		Conditions: len(q.Conditions),
		TotalHits:  result.Total,
		Returned:   len(result.Tickets),
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   cacheStatus == "hit",
	})
	h.writeJSON(w, http.StatusOK, result)
}

type tokenView struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	query.Pos
}

type parseResponse struct {
	Query      string             `json:"query"`
	Canonical  string             `json:"canonical"`
	Conditions []*query.Condition `json:"conditions"`
	Qualifiers []string           `json:"qualifiers"`
	Tokens     []tokenView        `json:"tokens,omitempty"`
}

// Parse returns the canonical form and the tree of a query without running
// it. With tokens=true the token stream is included.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if len(raw) > h.cfg.MaxQueryLength {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query longer than %d bytes", h.cfg.MaxQueryLength))
		return
	}
	q, err := h.parse(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := parseResponse{
		Query:      raw,
		Canonical:  q.String(),
		Conditions: q.Conditions,
		Qualifiers: q.Qualifiers(),
	}
	if resp.Conditions == nil {
		resp.Conditions = []*query.Condition{}
	}
	if resp.Qualifiers == nil {
		resp.Qualifiers = []string{}
	}
	if withTokens, _ := strconv.ParseBool(r.URL.Query().Get("tokens")); withTokens {
		for tok, err := range query.NewTokenizer(raw).All() {
			if err != nil {
				break
			}
			resp.Tokens = append(resp.Tokens, tokenView{Type: tok.Type.String(), Value: tok.Value, Pos: tok.Pos})
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// parse enforces the length limit, then parses raw under a child span.
func (h *Handler) parse(ctx context.Context, raw string) (*query.Query, error) {
	if len(raw) > h.cfg.MaxQueryLength {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query longer than %d bytes", h.cfg.MaxQueryLength)
	}
	_, span := tracing.StartChildSpan(ctx, "query.parse")
	defer span.End()
	q, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttr("conditions", len(q.Conditions))
	h.metrics.QueryConditions.Observe(float64(len(q.Conditions)))
	return q, nil
}

func (h *Handler) searchOptions(r *http.Request) (tickets.SearchOptions, error) {
	opts := tickets.SearchOptions{Limit: h.cfg.DefaultLimit}
	params := r.URL.Query()
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return opts, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		opts.Limit = min(limit, h.cfg.MaxResults)
	}
	if v := params.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return opts, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer")
		}
		opts.Offset = offset
	}
	if v := r.Header.Get(ActorHeader); v != "" {
		actor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || actor < 1 {
			return opts, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid %s header", ActorHeader)
		}
		opts.Actor = actor
	}
	return opts, nil
}

// rejectQuery answers 400 for a query that failed to parse or to resolve.
func (h *Handler) rejectQuery(ctx context.Context, w http.ResponseWriter, raw string, start time.Time, err error) {
	kind := errorKind(err)
	h.metrics.SearchQueriesTotal.WithLabelValues("invalid").Inc()
	h.metrics.QueryErrorsTotal.WithLabelValues(kind).Inc()
	logger.FromContext(ctx).Info("query rejected", "query", raw, "kind", kind, "error", err)
	h.track(ctx, analytics.SearchEvent{
		Type:      analytics.EventInvalidQuery,
		Query:     raw,
		ErrorKind: kind,
		LatencyMs: time.Since(start).Milliseconds(),
	})
	h.writeError(w, err)
}

func (h *Handler) track(ctx context.Context, event analytics.SearchEvent) {
	if h.collector == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	h.collector.Track(event)
}

// errorResponse is the body of every error answer. Position fields are
// present for query errors only.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	*query.Pos
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
}

func errorKind(err error) string {
	var lexErr *query.LexError
	var synErr *query.SyntaxError
	var qualErr *tickets.QualifierError
	switch {
	case errors.As(err, &lexErr):
		return "lex"
	case errors.As(err, &synErr):
		return "syntax"
	case errors.As(err, &qualErr):
		return "semantic"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{Error: err.Error(), Kind: errorKind(err)}
	var synErr *query.SyntaxError
	var qualErr *tickets.QualifierError
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &synErr):
		resp.Expected = synErr.Expected
		resp.Found = synErr.Found.String()
	case errors.As(err, &qualErr):
		resp.Error = qualErr.Message
		resp.Pos = &qualErr.Pos
	case errors.As(err, &appErr):
		resp.Error = appErr.Message
	}
	if pos, ok := query.ErrorPos(err); ok {
		resp.Pos = &pos
	}
	switch resp.Kind {
	case "internal":
		resp.Error = "search failed"
	case "timeout":
		resp.Error = "search timed out"
	case "unavailable":
		if appErr == nil {
			resp.Error = "ticket store unavailable"
		}
	}
	return resp
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), newErrorResponse(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
