package cache

import (
	"context"
	"log/slog"

	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/kafka"
	"github.com/bileto/ticket-search/pkg/metrics"
)

// Invalidator drops cached searches when Bileto reports a ticket change.
// Any change can move a ticket in or out of any cached result, so the whole
// cache is flushed.
type Invalidator struct {
	cache   *QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewInvalidator(cache *QueryCache, m *metrics.Metrics) *Invalidator {
	return &Invalidator{
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "cache-invalidator"),
	}
}

// Handle is the kafka.MessageHandler for the ticket-changed topic.
// Undecodable messages are skipped; flush failures are returned so that
// the offset is not committed.
func (inv *Invalidator) Handle(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[tickets.ChangeEvent](value)
	if err != nil {
		inv.logger.Error("failed to decode ticket change", "key", string(key), "error", err)
		inv.count("invalid")
		return nil
	}
	if _, err := inv.cache.Invalidate(ctx); err != nil {
		inv.count("failed")
		return err
	}
	inv.logger.Debug("cache flushed on ticket change", "ticket_id", event.TicketID, "change", event.Change)
	inv.count("processed")
	return nil
}

func (inv *Invalidator) count(status string) {
	if inv.metrics != nil {
		inv.metrics.TicketEventsTotal.WithLabelValues(status).Inc()
	}
}
