package tickets

import (
	"fmt"
	"strings"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/lib/pq"
)

// Predicate is a PostgreSQL boolean expression over the tickets table,
// aliased t, with $n placeholders bound to Args.
type Predicate struct {
	SQL  string
	Args []any
}

// Translate compiles q for actor and renders it as a predicate. An empty
// query yields TRUE.
func Translate(q *query.Query, actor int64) (Predicate, error) {
	f, err := Compile(q, actor)
	if err != nil {
		return Predicate{}, err
	}
	return TranslateFilter(f), nil
}

// TranslateFilter renders an already compiled filter.
func TranslateFilter(f *Filter) Predicate {
	if f == nil {
		return Predicate{SQL: "TRUE"}
	}
	tr := &translator{}
	var b strings.Builder
	tr.write(&b, f)
	return Predicate{SQL: b.String(), Args: tr.args}
}

type translator struct {
	args []any
}

func (tr *translator) bind(v any) string {
	tr.args = append(tr.args, v)
	return fmt.Sprintf("$%d", len(tr.args))
}

var columns = map[Field]string{
	FieldID:           "t.id",
	FieldUID:          "t.uid",
	FieldStatus:       "t.status",
	FieldType:         "t.type",
	FieldPriority:     "t.priority",
	FieldUrgency:      "t.urgency",
	FieldImpact:       "t.impact",
	FieldAssignee:     "t.assignee_id",
	FieldRequester:    "t.requester_id",
	FieldTeam:         "t.team_id",
	FieldOrganization: "t.organization_id",
}

// nullable lists the columns that may hold NULL. Membership tests on them
// are coalesced to FALSE so that negations keep the rows the test rejects.
var nullable = map[string]bool{
	"t.assignee_id": true,
	"t.team_id":     true,
}

func nullSafe(col, expr string) string {
	if nullable[col] {
		return "COALESCE(" + expr + ", FALSE)"
	}
	return expr
}

func (tr *translator) write(b *strings.Builder, f *Filter) {
	switch f.Op {
	case OpText:
		p := tr.bind("%" + escapeLike(f.Text) + "%")
		fmt.Fprintf(b, "(t.title ILIKE %s OR EXISTS (SELECT 1 FROM messages m WHERE m.ticket_id = t.id AND m.content ILIKE %s))", p, p)
	case OpIn:
		tr.writeIn(b, f)
	case OpMissing:
		if f.Field == FieldLabel {
			b.WriteString("NOT EXISTS (SELECT 1 FROM tickets_labels tl WHERE tl.ticket_id = t.id)")
		} else {
			fmt.Fprintf(b, "%s IS NULL", columns[f.Field])
		}
	case OpNot:
		b.WriteString("NOT ")
		tr.write(b, f.Children[0])
	case OpAnd, OpOr:
		sep := " AND "
		if f.Op == OpOr {
			sep = " OR "
		}
		b.WriteByte('(')
		for i, child := range f.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			tr.write(b, child)
		}
		b.WriteByte(')')
	}
}

func (tr *translator) writeIn(b *strings.Builder, f *Filter) {
	switch f.Field {
	case FieldID:
		fmt.Fprintf(b, "t.id = ANY(%s)", tr.bind(pq.Array(f.IDs)))
	case FieldUID, FieldStatus, FieldType, FieldPriority, FieldUrgency, FieldImpact:
		fmt.Fprintf(b, "%s = ANY(%s)", columns[f.Field], tr.bind(pq.Array(f.Values)))
	case FieldAssignee, FieldRequester:
		b.WriteString(tr.userMatch(f, columns[f.Field]))
	case FieldInvolves:
		b.WriteString(tr.involves(f))
	case FieldTeam:
		b.WriteString(tr.namedMatch(f, columns[f.Field], "teams"))
	case FieldOrganization:
		b.WriteString(tr.namedMatch(f, columns[f.Field], "organizations"))
	case FieldLabel:
		fmt.Fprintf(b, "EXISTS (SELECT 1 FROM tickets_labels tl JOIN labels l ON l.id = tl.label_id WHERE tl.ticket_id = t.id AND lower(l.name) = ANY(%s))",
			tr.bind(pq.Array(f.Values)))
	}
}

// userSet binds the user ids and e-mails of f and returns a function that
// renders the membership test for a column. Placeholders are shared by all
// the columns it is applied to.
func (tr *translator) userSet(f *Filter) func(col string) string {
	var ids, emails string
	if len(f.IDs) > 0 {
		ids = tr.bind(pq.Array(f.IDs))
	}
	if len(f.Emails) > 0 {
		emails = tr.bind(pq.Array(f.Emails))
	}
	return func(col string) string {
		var parts []string
		if ids != "" {
			parts = append(parts, nullSafe(col, fmt.Sprintf("%s = ANY(%s)", col, ids)))
		}
		if emails != "" {
			parts = append(parts, nullSafe(col, fmt.Sprintf("%s IN (SELECT u.id FROM users u WHERE lower(u.email) = ANY(%s))", col, emails)))
		}
		return orParts(parts)
	}
}

func (tr *translator) userMatch(f *Filter, col string) string {
	return tr.userSet(f)(col)
}

func (tr *translator) involves(f *Filter) string {
	match := tr.userSet(f)
	return fmt.Sprintf("(%s OR %s OR EXISTS (SELECT 1 FROM tickets_observers o WHERE o.ticket_id = t.id AND %s))",
		match("t.requester_id"), match("t.assignee_id"), match("o.user_id"))
}

func (tr *translator) namedMatch(f *Filter, col, table string) string {
	var parts []string
	if len(f.IDs) > 0 {
		parts = append(parts, nullSafe(col, fmt.Sprintf("%s = ANY(%s)", col, tr.bind(pq.Array(f.IDs)))))
	}
	if len(f.Values) > 0 {
		parts = append(parts, nullSafe(col, fmt.Sprintf("%s IN (SELECT n.id FROM %s n WHERE lower(n.name) = ANY(%s))", col, table, tr.bind(pq.Array(f.Values)))))
	}
	return orParts(parts)
}

func orParts(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
