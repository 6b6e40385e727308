// Package ingestion receives ticket change notifications from Bileto over
// HTTP and publishes them on the ticket-changed Kafka topic, where the
// searchers consume them to invalidate their cache.
package ingestion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bileto/ticket-search/internal/tickets"
)

var changes = []string{tickets.ChangeCreated, tickets.ChangeUpdated, tickets.ChangeDeleted}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

// Validate checks a change notification.
func Validate(e *tickets.ChangeEvent) error {
	errs := make(map[string]string)
	if e.TicketID <= 0 {
		errs["ticket_id"] = "must be a positive integer"
	}
	if !slices.Contains(changes, e.Change) {
		errs["change"] = fmt.Sprintf("must be one of %s", strings.Join(changes, ", "))
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
