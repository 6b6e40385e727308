package tickets

import "time"

// Changes reported by Bileto.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ChangeEvent is published on the ticket-changed topic whenever a ticket or
// one of its messages is created, updated or deleted.
type ChangeEvent struct {
	TicketID  int64     `json:"ticket_id"`
	Change    string    `json:"change"`
	Timestamp time.Time `json:"timestamp"`
}
