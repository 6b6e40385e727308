package tickets

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bileto/ticket-search/internal/query"
	apperrors "github.com/bileto/ticket-search/pkg/errors"
)

func mustParse(t testing.TB, input string) *query.Query {
	t.Helper()
	q, err := query.Parse(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	return q
}

func argStrings(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a)
	}
	return out
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		input string
		actor int64
		sql   string
		args  []string
	}{
		{"", 0, "TRUE", []string{}},
		{"status:open", 0, "t.status = ANY($1)", []string{"&[new in_progress planned pending]"}},
		{"#42", 0, "t.id = ANY($1)", []string{"&[42]"}},
		{"priority:HIGH,medium", 0, "t.priority = ANY($1)", []string{"&[high medium]"}},
		{
			"printer -label:hardware", 0,
			"((t.title ILIKE $1 OR EXISTS (SELECT 1 FROM messages m WHERE m.ticket_id = t.id AND m.content ILIKE $1)) AND NOT EXISTS (SELECT 1 FROM tickets_labels tl JOIN labels l ON l.id = tl.label_id WHERE tl.ticket_id = t.id AND lower(l.name) = ANY($2)))",
			[]string{"%printer%", "&[hardware]"},
		},
		{
			"assignee:@me,Bob@Example.com", 7,
			"(COALESCE(t.assignee_id = ANY($1), FALSE) OR COALESCE(t.assignee_id IN (SELECT u.id FROM users u WHERE lower(u.email) = ANY($2)), FALSE))",
			[]string{"&[7]", "&[bob@example.com]"},
		},
		{
			"involves:5", 0,
			"(t.requester_id = ANY($1) OR COALESCE(t.assignee_id = ANY($1), FALSE) OR EXISTS (SELECT 1 FROM tickets_observers o WHERE o.ticket_id = t.id AND o.user_id = ANY($1)))",
			[]string{"&[5]"},
		},
		{
			"no:team or team:support", 0,
			"(t.team_id IS NULL OR COALESCE(t.team_id IN (SELECT n.id FROM teams n WHERE lower(n.name) = ANY($1)), FALSE))",
			[]string{"&[support]"},
		},
		{
			"org:3,globex", 0,
			"(t.organization_id = ANY($1) OR t.organization_id IN (SELECT n.id FROM organizations n WHERE lower(n.name) = ANY($2)))",
			[]string{"&[3]", "&[globex]"},
		},
		{"no:assignee", 0, "t.assignee_id IS NULL", []string{}},
		{"-assignee:42", 0, "NOT COALESCE(t.assignee_id = ANY($1), FALSE)", []string{"&[42]"}},
		{"not team:network", 0, "NOT COALESCE(t.team_id IN (SELECT n.id FROM teams n WHERE lower(n.name) = ANY($1)), FALSE)", []string{"&[network]"}},
		{"-requester:3", 0, "NOT t.requester_id = ANY($1)", []string{"&[3]"}},
		{`"50%_off"`, 0, "(t.title ILIKE $1 OR EXISTS (SELECT 1 FROM messages m WHERE m.ticket_id = t.id AND m.content ILIKE $1))", []string{`%50\%\_off%`}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			pred, err := Translate(mustParse(t, tt.input), tt.actor)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if pred.SQL != tt.sql {
				t.Errorf("sql:\n got %s\nwant %s", pred.SQL, tt.sql)
			}
			if got := argStrings(pred.Args); !slices.Equal(got, tt.args) {
				t.Errorf("args = %v, want %v", got, tt.args)
			}
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		input string
		actor int64
		want  error
	}{
		{"foo:bar", 1, apperrors.ErrUnknownQualifier},
		{"open (bogus:1 or status:new)", 1, apperrors.ErrUnknownQualifier},
		{"status:bogus", 1, apperrors.ErrInvalidInput},
		{"priority:urgent", 1, apperrors.ErrInvalidInput},
		{"assignee:@me", 0, apperrors.ErrInvalidInput},
		{"assignee:charlie", 1, apperrors.ErrInvalidInput},
		{"no:requester", 1, apperrors.ErrInvalidInput},
		{"no:team,label", 1, apperrors.ErrInvalidInput},
		{"id:abc", 1, apperrors.ErrInvalidInput},
		{"id:0", 1, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Translate(mustParse(t, tt.input), tt.actor)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var qe *QualifierError
			if !errors.As(err, &qe) {
				t.Fatalf("expected *QualifierError, got %T", err)
			}
			if !apperrors.IsUserError(err) {
				t.Errorf("qualifier errors must be user errors")
			}
		})
	}
}

func TestQualifierErrorPosition(t *testing.T) {
	_, err := Translate(mustParse(t, "status:open bogus:1"), 1)
	var qe *QualifierError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QualifierError, got %v", err)
	}
	if qe.Pos.Offset != 12 || qe.Qualifier != "bogus" {
		t.Errorf("unexpected error %+v", qe)
	}
}

func TestUsesActor(t *testing.T) {
	if !UsesActor(mustParse(t, "open (assignee:@me or involves:@me)")) {
		t.Errorf("expected @me to be detected")
	}
	if UsesActor(mustParse(t, "assignee:5 @me")) {
		t.Errorf("free text @me is not an actor reference")
	}
	q := mustParse(t, "assignee:@ME")
	if !UsesActor(q) {
		t.Errorf("expected @ME to be detected")
	}
	for _, actor := range []int64{1, 2} {
		f, err := Compile(q, actor)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(f.IDs, []int64{actor}) {
			t.Errorf("actor %d: ids = %v", actor, f.IDs)
		}
	}
}
