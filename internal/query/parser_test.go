package query

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, input string) *Query {
	t.Helper()
	q, err := Parse(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("parse %q produced an invalid tree: %v", input, err)
	}
	return q
}

func TestParseEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n"} {
		q := mustParse(t, input)
		if !q.IsEmpty() {
			t.Errorf("expected empty query for %q, got %v", input, q.Conditions)
		}
		if q.Condition() != nil {
			t.Errorf("expected nil root for %q", input)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  []*Condition
	}{
		{
			input: "status:open",
			want:  []*Condition{NewQualifier("status", "open")},
		},
		{
			input: "status:open,in_progress",
			want:  []*Condition{NewQualifier("status", "open", "in_progress")},
		},
		{
			input: "status:open and not assignee:42",
			want: []*Condition{
				NewQualifier("status", "open"),
				NewNot(NewQualifier("assignee", "42")),
			},
		},
		{
			input: "(a or b) c",
			want: []*Condition{
				NewOr(NewText("a"), NewText("b")),
				NewText("c"),
			},
		},
		{
			input: "a b or c",
			want: []*Condition{
				NewOr(NewAnd(NewText("a"), NewText("b")), NewText("c")),
			},
		},
		{
			input: "a or b or c",
			want: []*Condition{
				NewOr(NewText("a"), NewText("b"), NewText("c")),
			},
		},
		{
			input: "not a b",
			want: []*Condition{
				NewNot(NewText("a")),
				NewText("b"),
			},
		},
		{
			input: "not not a",
			want: []*Condition{NewNot(NewNot(NewText("a")))},
		},
		{
			input: "-status:closed #42",
			want: []*Condition{
				NewNot(NewQualifier("status", "closed")),
				NewQualifier("id", "42"),
			},
		},
		{
			input: `(a b) c`,
			want: []*Condition{
				NewAnd(NewText("a"), NewText("b")),
				NewText("c"),
			},
		},
		{
			input: `((a))`,
			want:  []*Condition{NewText("a")},
		},
		{
			input: `label:"needs info",bug "login page"`,
			want: []*Condition{
				NewQualifier("label", "needs info", "bug"),
				NewText("login page"),
			},
		},
		{
			input: "not (status:open or priority:high) and org:acme",
			want: []*Condition{
				NewNot(NewOr(NewQualifier("status", "open"), NewQualifier("priority", "high"))),
				NewQualifier("org", "acme"),
			},
		},
		{
			input: "a AND b OR c AND d",
			want: []*Condition{
				NewOr(
					NewAnd(NewText("a"), NewText("b")),
					NewAnd(NewText("c"), NewText("d")),
				),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q := mustParse(t, tt.input)
			want := &Query{Conditions: tt.want}
			if !q.Equal(want) {
				t.Errorf("parse %q:\n got  %s\n want %s", tt.input, dump(q), dump(want))
			}
		})
	}
}

func TestParseRootCondition(t *testing.T) {
	q := mustParse(t, "status:open and not assignee:42")
	root := q.Condition()
	if root.Kind != KindAnd || len(root.Children) != 2 {
		t.Fatalf("expected and with two children, got %s", root)
	}
	if !root.Children[0].Equal(NewQualifier("status", "open")) {
		t.Errorf("unexpected first child %s", root.Children[0])
	}
	not := root.Children[1]
	if not.Kind != KindNot || !not.Children[0].Equal(NewQualifier("assignee", "42")) {
		t.Errorf("unexpected second child %s", not)
	}
}

func TestParsePositions(t *testing.T) {
	q := mustParse(t, "a  not status:open")
	if got := q.Conditions[1].Pos.Offset; got != 3 {
		t.Errorf("expected not at offset 3, got %d", got)
	}
	if got := q.Conditions[1].Children[0].Pos.Offset; got != 7 {
		t.Errorf("expected qualifier at offset 7, got %d", got)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		input    string
		found    TokenType
		offset   int
		expected string
	}{
		{"(status:open", EndOfQuery, 12, "')'"},
		{"status:open)", CloseBracket, 11, "end of query"},
		{"status:", EndOfQuery, 7, `value for qualifier "status"`},
		{"status: or", Or, 8, `value for qualifier "status"`},
		{"status:open,", EndOfQuery, 12, "value after ','"},
		{"a and", EndOfQuery, 5, "expression after 'and'"},
		{"a or", EndOfQuery, 4, "expression after 'or'"},
		{"not", EndOfQuery, 3, "expression after 'not'"},
		{"or a", Or, 0, "expression"},
		{"a , b", Comma, 2, "end of query"},
		{"()", CloseBracket, 1, "expression after '('"},
		{"a and or b", Or, 6, "expression after 'and'"},
		{`""`, Text, 0, "non-empty text"},
		{`label:""`, Text, 6, `value for qualifier "label"`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if synErr.Found.Type != tt.found {
				t.Errorf("expected found %v, got %v", tt.found, synErr.Found.Type)
			}
			if synErr.Pos.Offset != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, synErr.Pos.Offset)
			}
			if synErr.Expected != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, synErr.Expected)
			}
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("expected error to wrap ErrInvalidQuery")
			}
		})
	}
}

func TestParseLexErrorPropagates(t *testing.T) {
	_, err := Parse(`status:open "hello`)
	var lexErr *LexError
	if !errors.As(err, &lexErr) {
		t.Fatalf("expected LexError, got %v", err)
	}
	if lexErr.Pos.Offset != 12 {
		t.Errorf("expected offset 12, got %d", lexErr.Pos.Offset)
	}
	pos, ok := ErrorPos(err)
	if !ok || pos != lexErr.Pos {
		t.Errorf("ErrorPos returned %v %v", pos, ok)
	}
}

func TestParseDeterministicErrors(t *testing.T) {
	_, err1 := Parse("a and (b or")
	_, err2 := Parse("a and (b or")
	if err1 == nil || err1.Error() != err2.Error() {
		t.Fatalf("expected identical errors, got %v and %v", err1, err2)
	}
}

func TestParseNestingLimit(t *testing.T) {
	input := strings.Repeat("(", maxDepth+1) + "a" + strings.Repeat(")", maxDepth+1)
	_, err := Parse(input)
	var synErr *SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}

	input = strings.Repeat("(", maxDepth) + "a" + strings.Repeat(")", maxDepth)
	if _, err := Parse(input); err != nil {
		t.Fatalf("expected %d nested groups to parse, got %v", maxDepth, err)
	}
}

func TestParseSpacedQualifierValues(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"status: open", "[status(open)]"},
		{"status:open, closed", "[status(open|closed)]"},
		{`label: "on hold" printer`, "[label(on hold) text(printer)]"},
		{"status:or", "[status(or)]"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := dump(mustParse(t, tt.input)); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	// Once separated by whitespace the value is an ordinary token, so a
	// keyword no longer reads as a value.
	_, err := Parse("status: or")
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) || syntaxErr.Pos.Offset != 8 {
		t.Fatalf("expected a syntax error at offset 8, got %v", err)
	}
}

func TestQueryQualifiers(t *testing.T) {
	q := mustParse(t, "status:open (label:bug or -status:closed) #3 text")
	got := q.Qualifiers()
	want := []string{"status", "label", "id"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func dump(q *Query) string {
	parts := make([]string, len(q.Conditions))
	for i, c := range q.Conditions {
		parts[i] = dumpCondition(c)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func dumpCondition(c *Condition) string {
	switch c.Kind {
	case KindText:
		return "text(" + c.Value + ")"
	case KindQualifier:
		return c.Qualifier + "(" + strings.Join(c.Values, "|") + ")"
	default:
		parts := make([]string, len(c.Children))
		for i, child := range c.Children {
			parts[i] = dumpCondition(child)
		}
		return c.Kind.String() + "(" + strings.Join(parts, " ") + ")"
	}
}
