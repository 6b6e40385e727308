package tickets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/pkg/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const selectTickets = `
SELECT t.id, t.uid, t.title, t.status, t.type, t.priority, t.urgency, t.impact,
       org.id AS organization_id, org.name AS organization_name,
       req.id AS requester_id, req.email AS requester_email, req.name AS requester_name,
       asg.id AS assignee_id, asg.email AS assignee_email, asg.name AS assignee_name,
       tm.id AS team_id, tm.name AS team_name,
       ARRAY(SELECT l.name FROM tickets_labels tl JOIN labels l ON l.id = tl.label_id
             WHERE tl.ticket_id = t.id ORDER BY l.name) AS labels,
       ARRAY(SELECT o.user_id FROM tickets_observers o
             WHERE o.ticket_id = t.id ORDER BY o.user_id) AS observer_ids,
       t.created_at, t.updated_at
FROM tickets t
JOIN organizations org ON org.id = t.organization_id
JOIN users req ON req.id = t.requester_id
LEFT JOIN users asg ON asg.id = t.assignee_id
LEFT JOIN teams tm ON tm.id = t.team_id`

type ticketRow struct {
	ID               int64          `db:"id"`
	UID              string         `db:"uid"`
	Title            string         `db:"title"`
	Status           string         `db:"status"`
	Type             string         `db:"type"`
	Priority         string         `db:"priority"`
	Urgency          string         `db:"urgency"`
	Impact           string         `db:"impact"`
	OrganizationID   int64          `db:"organization_id"`
	OrganizationName string         `db:"organization_name"`
	RequesterID      int64          `db:"requester_id"`
	RequesterEmail   string         `db:"requester_email"`
	RequesterName    string         `db:"requester_name"`
	AssigneeID       sql.NullInt64  `db:"assignee_id"`
	AssigneeEmail    sql.NullString `db:"assignee_email"`
	AssigneeName     sql.NullString `db:"assignee_name"`
	TeamID           sql.NullInt64  `db:"team_id"`
	TeamName         sql.NullString `db:"team_name"`
	Labels           pq.StringArray `db:"labels"`
	ObserverIDs      pq.Int64Array  `db:"observer_ids"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r ticketRow) ticket() Ticket {
	t := Ticket{
		ID:           r.ID,
		UID:          r.UID,
		Title:        r.Title,
		Status:       Status(r.Status),
		Type:         r.Type,
		Priority:     r.Priority,
		Urgency:      r.Urgency,
		Impact:       r.Impact,
		Organization: Organization{ID: r.OrganizationID, Name: r.OrganizationName},
		Requester:    User{ID: r.RequesterID, Email: r.RequesterEmail, Name: r.RequesterName},
		Labels:       r.Labels,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.AssigneeID.Valid {
		t.Assignee = &User{ID: r.AssigneeID.Int64, Email: r.AssigneeEmail.String, Name: r.AssigneeName.String}
	}
	if r.TeamID.Valid {
		t.Team = &Team{ID: r.TeamID.Int64, Name: r.TeamName.String}
	}
	for _, id := range r.ObserverIDs {
		t.Observers = append(t.Observers, User{ID: id})
	}
	return t
}

// PostgresRepository searches the Bileto database.
type PostgresRepository struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewPostgresRepository(client *postgres.Client) *PostgresRepository {
	return &PostgresRepository{
		client: client,
		logger: slog.Default().With("component", "postgres-repository"),
	}
}

// Search counts the matches and loads the requested page from the same
// snapshot.
func (r *PostgresRepository) Search(ctx context.Context, q *query.Query, opts SearchOptions) (*Page, error) {
	pred, err := Translate(q, opts.Actor)
	if err != nil {
		return nil, err
	}
	countQuery := "SELECT count(*) FROM tickets t WHERE " + pred.SQL

	args := append([]any(nil), pred.Args...)
	pageQuery := selectTickets + "\nWHERE " + pred.SQL + "\nORDER BY t.updated_at DESC, t.id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		pageQuery += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	args = append(args, opts.Offset)
	pageQuery += fmt.Sprintf(" OFFSET $%d", len(args))

	page := &Page{Limit: opts.Limit, Offset: opts.Offset}
	var rows []ticketRow
	err = r.client.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := sqlx.GetContext(ctx, tx, &page.Total, countQuery, pred.Args...); err != nil {
			return fmt.Errorf("counting tickets: %w", err)
		}
		if page.Total <= opts.Offset {
			return nil
		}
		if err := sqlx.SelectContext(ctx, tx, &rows, pageQuery, args...); err != nil {
			return fmt.Errorf("selecting tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	page.Tickets = make([]Ticket, len(rows))
	for i, row := range rows {
		page.Tickets[i] = row.ticket()
	}
	r.logger.Debug("tickets searched", "predicate", pred.SQL, "total", page.Total, "returned", len(rows))
	return page, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
