package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bileto/ticket-search/internal/tickets"
	"github.com/bileto/ticket-search/pkg/kafka"
)

type fakePublisher struct {
	events []kafka.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, events ...kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tickets/changes", strings.NewReader(body)))
	return rec
}

func TestChanges(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler(pub)

	rec := post(h, `{"ticket_id": 42, "change": "updated"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	rec = post(h, `[{"ticket_id": 1, "change": "created"}, {"ticket_id": 2, "change": "deleted", "timestamp": "2026-01-05T10:00:00Z"}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	if len(pub.events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(pub.events))
	}
	first := pub.events[0]
	change := first.Value.(tickets.ChangeEvent)
	if first.Key != "42" || change.Change != tickets.ChangeUpdated || change.Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", first)
	}
	if got := pub.events[2].Value.(tickets.ChangeEvent).Timestamp.Year(); got != 2026 {
		t.Errorf("caller timestamp not kept: %d", got)
	}
}

func TestChangesRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "invalid JSON body"},
		{"empty batch", `[]`, "no change in body"},
		{"bad ticket", `{"ticket_id": 0, "change": "updated"}`, "validation failed"},
		{"bad change", `[{"ticket_id": 1, "change": "created"}, {"ticket_id": 2, "change": "merged"}]`, "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			rec := post(NewHandler(pub), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tt.want {
				t.Errorf("error = %v, want %s", body["error"], tt.want)
			}
			if len(pub.events) != 0 {
				t.Errorf("nothing should be published, got %d events", len(pub.events))
			}
		})
	}
}

func TestChangesPublishFailure(t *testing.T) {
	rec := post(NewHandler(&fakePublisher{err: errors.New("broker down")}), `{"ticket_id": 1, "change": "created"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d", rec.Code)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validate(&tickets.ChangeEvent{})
	want := "change: must be one of created, updated, deleted; ticket_id: must be a positive integer"
	if err == nil || err.Error() != want {
		t.Errorf("got %v, want %s", err, want)
	}
}
