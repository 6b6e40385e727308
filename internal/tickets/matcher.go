package tickets

import (
	"slices"
	"strings"

	"github.com/bileto/ticket-search/internal/query"
)

// Match reports whether t satisfies c for actor. A nil condition matches
// every ticket.
func Match(c *query.Condition, t *Ticket, actor int64) (bool, error) {
	if c == nil {
		return true, nil
	}
	f, err := compile(c, actor)
	if err != nil {
		return false, err
	}
	return f.Matches(t), nil
}

// Matches evaluates f against t with the semantics of the SQL predicate
// built by TranslateFilter. A nil filter matches every ticket.
func (f *Filter) Matches(t *Ticket) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpText:
		return matchText(f.Text, t)
	case OpIn:
		return f.matchIn(t)
	case OpMissing:
		switch f.Field {
		case FieldAssignee:
			return t.Assignee == nil
		case FieldTeam:
			return t.Team == nil
		case FieldLabel:
			return len(t.Labels) == 0
		}
		return false
	case OpNot:
		return !f.Children[0].Matches(t)
	case OpAnd:
		for _, child := range f.Children {
			if !child.Matches(t) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range f.Children {
			if child.Matches(t) {
				return true
			}
		}
		return false
	}
	return false
}

func (f *Filter) matchIn(t *Ticket) bool {
	switch f.Field {
	case FieldID:
		return slices.Contains(f.IDs, t.ID)
	case FieldUID:
		return slices.Contains(f.Values, strings.ToLower(t.UID))
	case FieldStatus:
		return slices.Contains(f.Values, string(t.Status))
	case FieldType:
		return slices.Contains(f.Values, t.Type)
	case FieldPriority:
		return slices.Contains(f.Values, t.Priority)
	case FieldUrgency:
		return slices.Contains(f.Values, t.Urgency)
	case FieldImpact:
		return slices.Contains(f.Values, t.Impact)
	case FieldAssignee:
		return t.Assignee != nil && f.matchUser(*t.Assignee)
	case FieldRequester:
		return f.matchUser(t.Requester)
	case FieldInvolves:
		return t.involves(f.matchUser)
	case FieldTeam:
		return t.Team != nil && f.matchNamed(t.Team.ID, t.Team.Name)
	case FieldOrganization:
		return f.matchNamed(t.Organization.ID, t.Organization.Name)
	case FieldLabel:
		return slices.ContainsFunc(t.Labels, func(l string) bool {
			return slices.Contains(f.Values, strings.ToLower(l))
		})
	}
	return false
}

func (f *Filter) matchUser(u User) bool {
	return slices.Contains(f.IDs, u.ID) ||
		(u.Email != "" && slices.Contains(f.Emails, strings.ToLower(u.Email)))
}

func (f *Filter) matchNamed(id int64, name string) bool {
	return slices.Contains(f.IDs, id) || slices.Contains(f.Values, strings.ToLower(name))
}

// matchText is a case-insensitive substring test over the title and the
// messages, like ILIKE '%text%'.
func matchText(text string, t *Ticket) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	return slices.ContainsFunc(t.Messages, func(m string) bool {
		return strings.Contains(strings.ToLower(m), needle)
	})
}
