package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/kafka"
	"github.com/bileto/ticket-search/pkg/logger"
)

// maxBatch bounds the number of changes accepted in one request.
const maxBatch = 500

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type Handler struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewHandler(pub Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the webhook on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tickets/changes", h.Changes)
}

// Changes accepts one change or a JSON array of changes. Events are keyed
// by ticket id so that the changes of a ticket stay ordered.
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	batch, err := decodeChanges(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	events := make([]kafka.Event, 0, len(batch))
	now := time.Now().UTC()
	for i := range batch {
		change := &batch[i]
		if err := Validate(change); err != nil {
			var validationErr *ValidationError
			errors.As(err, &validationErr)
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"index":  i,
				"fields": validationErr.Fields,
			})
			return
		}
		if change.Timestamp.IsZero() {
			change.Timestamp = now
		}
		events = append(events, kafka.Event{Key: strconv.FormatInt(change.TicketID, 10), Value: *change})
	}

	if err := h.publisher.Publish(r.Context(), events...); err != nil {
		log.Error("failed to publish ticket changes", "count", len(events), "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "publishing failed"})
		return
	}
	log.Info("ticket changes accepted", "count", len(events))
	h.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(events)})
}

func decodeChanges(body io.Reader) ([]tickets.ChangeEvent, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	var batch []tickets.ChangeEvent
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, errors.New("invalid JSON body")
		}
	} else {
		var single tickets.ChangeEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, errors.New("invalid JSON body")
		}
		batch = append(batch, single)
	}
	switch {
	case len(batch) == 0:
		return nil, errors.New("no change in body")
	case len(batch) > maxBatch:
		return nil, errors.New("too many changes in one request")
	}
	return batch, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
