// Package tickets gives meaning to search queries: it resolves qualifiers
// against the ticket model, renders them as a PostgreSQL predicate or
// evaluates them in memory, and runs searches against a Repository.
package tickets

import (
	"slices"
	"time"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusPlanned    Status = "planned"
	StatusPending    Status = "pending"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Statuses lists the stored statuses in workflow order.
var Statuses = []Status{
	StatusNew,
	StatusInProgress,
	StatusPlanned,
	StatusPending,
	StatusResolved,
	StatusClosed,
}

// virtualStatuses are accepted by status: and expand to stored ones.
var virtualStatuses = map[string][]Status{
	"open":     {StatusNew, StatusInProgress, StatusPlanned, StatusPending},
	"finished": {StatusResolved, StatusClosed},
}

// IsOpen reports whether s belongs to the open virtual status.
func (s Status) IsOpen() bool {
	return slices.Contains(virtualStatuses["open"], s)
}

const (
	TypeRequest  = "request"
	TypeIncident = "incident"
)

// Levels are the values of priority, urgency and impact.
var Levels = []string{"low", "medium", "high"}

type User struct {
	ID    int64  `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name,omitempty" yaml:"name"`
}

type Organization struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Team struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Ticket is the searchable projection of a Bileto ticket. Assignee and
// Team are nil when unset.
type Ticket struct {
	ID           int64        `json:"id" yaml:"id"`
	UID          string       `json:"uid" yaml:"uid"`
	Title        string       `json:"title" yaml:"title"`
	Status       Status       `json:"status" yaml:"status"`
	Type         string       `json:"type" yaml:"type"`
	Priority     string       `json:"priority" yaml:"priority"`
	Urgency      string       `json:"urgency" yaml:"urgency"`
	Impact       string       `json:"impact" yaml:"impact"`
	Organization Organization `json:"organization" yaml:"organization"`
	Requester    User         `json:"requester" yaml:"requester"`
	Assignee     *User        `json:"assignee,omitempty" yaml:"assignee"`
	Team         *Team        `json:"team,omitempty" yaml:"team"`
	Labels       []string     `json:"labels,omitempty" yaml:"labels"`
	Observers    []User       `json:"observers,omitempty" yaml:"observers"`
	Messages     []string     `json:"-" yaml:"messages"`
	CreatedAt    time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" yaml:"updatedAt"`
}

// involves reports whether the user matched by fn requested, is assigned
// to, or observes t.
func (t *Ticket) involves(fn func(User) bool) bool {
	if fn(t.Requester) || (t.Assignee != nil && fn(*t.Assignee)) {
		return true
	}
	return slices.ContainsFunc(t.Observers, fn)
}
