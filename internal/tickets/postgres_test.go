package tickets

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/bileto/ticket-search/pkg/config"
	"github.com/bileto/ticket-search/pkg/postgres"
)

const seedSQL = `
TRUNCATE messages, tickets_observers, tickets_labels, labels, tickets, teams, organizations, users RESTART IDENTITY CASCADE;
INSERT INTO users (id, email, name) VALUES (10, 'alix@example.com', 'Alix'), (20, 'charlie@example.com', 'Charlie');
INSERT INTO organizations (id, name) VALUES (1, 'Acme');
INSERT INTO teams (id, name) VALUES (1, 'Network');
INSERT INTO tickets (id, uid, title, status, type, priority, urgency, impact, organization_id, requester_id, assignee_id, team_id, updated_at) VALUES
    (1, 'abc123', 'Printer on fire', 'new', 'incident', 'high', 'high', 'medium', 1, 10, NULL, NULL, '2026-01-05T10:00:00Z'),
    (2, 'def456', 'VPN access', 'in_progress', 'request', 'medium', 'low', 'low', 1, 10, 20, 1, '2026-01-07T09:00:00Z'),
    (3, 'ghi789', 'Mailbox quota', 'resolved', 'incident', 'low', 'medium', 'low', 1, 20, 20, 1, '2026-01-07T09:00:00Z');
INSERT INTO labels (id, name) VALUES (1, 'hardware');
INSERT INTO tickets_labels (ticket_id, label_id) VALUES (1, 1);
INSERT INTO tickets_observers (ticket_id, user_id) VALUES (3, 10);
INSERT INTO messages (ticket_id, content) VALUES (3, 'The printer next to my desk is fine');
`

func TestPostgresRepository_Integration(t *testing.T) {
	if os.Getenv("RUN_DB_TESTS") != "1" {
		t.Skip("set RUN_DB_TESTS=1 to run database tests")
	}
	ctx := context.Background()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer client.Close()

	schema, err := os.ReadFile("testdata/schema.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.DB.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := client.DB.ExecContext(ctx, seedSQL); err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo := NewPostgresRepository(client)
	memory := NewMemoryRepository()
	tests := []struct {
		input string
		want  []int64
	}{
		{"", []int64{3, 2, 1}},
		{"printer", []int64{3, 1}},
		{"status:open", []int64{2, 1}},
		{"involves:alix@example.com", []int64{3, 2, 1}},
		{"assignee:@me -status:finished", []int64{2}},
		{"no:assignee or label:hardware", []int64{1}},
		{"team:network org:1", []int64{3, 2}},
		{"-assignee:20", []int64{1}},
		{"not team:network", []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			page, err := repo.Search(ctx, mustParse(t, tt.input), SearchOptions{Actor: 20, Limit: 10})
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if got := ticketIDs(page); !slices.Equal(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
			if page.Total != len(tt.want) {
				t.Errorf("total = %d, want %d", page.Total, len(tt.want))
			}
		})
	}

	t.Run("paging", func(t *testing.T) {
		page, err := repo.Search(ctx, mustParse(t, ""), SearchOptions{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatal(err)
		}
		if got := ticketIDs(page); !slices.Equal(got, []int64{2}) || page.Total != 3 {
			t.Errorf("unexpected page %v total %d", got, page.Total)
		}
		if page.Tickets[0].Assignee == nil || page.Tickets[0].Team.Name != "Network" {
			t.Errorf("joined fields not loaded: %+v", page.Tickets[0])
		}
	})

	t.Run("semantic errors do not reach the database", func(t *testing.T) {
		_, errPG := repo.Search(ctx, mustParse(t, "bogus:1"), SearchOptions{})
		_, errMem := memory.Search(ctx, mustParse(t, "bogus:1"), SearchOptions{})
		if errPG == nil || errPG.Error() != errMem.Error() {
			t.Errorf("expected identical qualifier errors, got %v and %v", errPG, errMem)
		}
	})
}
