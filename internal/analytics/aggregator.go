// Package analytics collects search events on the search service and
// aggregates them on the analytics service.
package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bileto/ticket-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	InvalidQueries    int64            `json:"invalid_queries"`
	FailedSearches    int64            `json:"failed_searches"`
	ErrorsByKind      map[string]int64 `json:"errors_by_kind"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	TopQualifiers     []QueryCount     `json:"top_qualifiers"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	InvalidInputs     []QueryCount     `json:"invalid_inputs"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

// QueryCount pairs a query (or a qualifier name) with its frequency.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	invalidQueries    int64
	failedSearches    int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	errorsByKind      map[string]int64
	latencies         []int64
	queryCounts       map[string]int64
	qualifierCounts   map[string]int64
	zeroResultQueries map[string]int64
	invalidInputs     map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

// NewAggregator returns an empty aggregator. Feed it with HandleEvent or
// Record.
func NewAggregator() *Aggregator {
	return &Aggregator{
		errorsByKind:      make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		qualifierCounts:   make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		invalidInputs:     make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes search events for the Kafka consumer. Undecodable
// messages are logged and skipped so that they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++

	switch event.Type {
	case EventInvalidQuery:
		a.invalidQueries++
		a.errorsByKind[event.ErrorKind]++
		a.invalidInputs[event.Query]++
		return
	case EventSearchFailed:
		a.failedSearches++
		a.errorsByKind[event.ErrorKind]++
		return
	}

	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) == maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Key()]++
	for _, q := range event.Qualifiers {
		a.qualifierCounts[q]++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Key()]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		InvalidQueries:  a.invalidQueries,
		FailedSearches:  a.failedSearches,
		ErrorsByKind:    make(map[string]int64, len(a.errorsByKind)),
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
	}
	for k, v := range a.errorsByKind {
		stats.ErrorsByKind[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopQualifiers = topN(a.qualifierCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.InvalidInputs = topN(a.invalidInputs, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent entries, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
