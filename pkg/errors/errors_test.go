package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/bileto/ticket-search/internal/query"
)

func TestHTTPStatusCode(t *testing.T) {
	_, syntaxErr := query.Parse("(status:open")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrUnavailable, http.StatusBadGateway, "down"), http.StatusBadGateway},
		{"syntax error", syntaxErr, http.StatusBadRequest},
		{"wrapped syntax error", fmt.Errorf("searching: %w", syntaxErr), http.StatusBadRequest},
		{"unknown qualifier", Newf(ErrUnknownQualifier, http.StatusBadRequest, "qualifier %q", "foo"), http.StatusBadRequest},
		{"not found", ErrTicketNotFound, http.StatusNotFound},
		{"deadline", fmt.Errorf("repo: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsUserError(t *testing.T) {
	_, lexErr := query.Parse(`"open`)
	if !IsUserError(lexErr) {
		t.Errorf("expected lex error to be a user error")
	}
	if IsUserError(ErrInternal) {
		t.Errorf("internal error reported as user error")
	}
}
