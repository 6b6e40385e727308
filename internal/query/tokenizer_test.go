package query

import (
	"errors"
	"testing"
)

func TestTokenizeTypes(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{"", []TokenType{EndOfQuery}},
		{"   \t\n ", []TokenType{EndOfQuery}},
		{"status:open", []TokenType{Qualifier, Text, EndOfQuery}},
		{"status:open,in_progress", []TokenType{Qualifier, Text, Comma, Text, EndOfQuery}},
		{"a AND b", []TokenType{Text, And, Text, EndOfQuery}},
		{"a or b", []TokenType{Text, Or, Text, EndOfQuery}},
		{"Not a", []TokenType{Not, Text, EndOfQuery}},
		{"(a)", []TokenType{OpenBracket, Text, CloseBracket, EndOfQuery}},
		{"#42", []TokenType{Id, EndOfQuery}},
		{"-status:closed", []TokenType{Not, Qualifier, Text, EndOfQuery}},
		{"- a", []TokenType{Text, Text, EndOfQuery}},
		{`"hello world" foo`, []TokenType{Text, Text, EndOfQuery}},
		{`label:"in review",bug`, []TokenType{Qualifier, Text, Comma, Text, EndOfQuery}},
		{"status:open)", []TokenType{Qualifier, Text, CloseBracket, EndOfQuery}},
		{"a,b", []TokenType{Text, Comma, Text, EndOfQuery}},
		{"status:", []TokenType{Qualifier, EndOfQuery}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("tokenize error: %v", err)
			}
			if len(tokens) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d: %v", len(tt.expected), len(tokens), tokens)
			}
			for i, expected := range tt.expected {
				if tokens[i].Type != expected {
					t.Errorf("token %d: expected %v, got %v (%q)", i, expected, tokens[i].Type, tokens[i].Value)
				}
			}
		})
	}
}

func TestTokenizeValues(t *testing.T) {
	tests := []struct {
		input string
		want  []Token
	}{
		{
			input: "status:open and not assignee:id:42",
			want: []Token{
				{Type: Qualifier, Value: "status"},
				{Type: Text, Value: "open"},
				{Type: And, Value: "and"},
				{Type: Not, Value: "not"},
				{Type: Qualifier, Value: "assignee"},
				{Type: Text, Value: "id:42"},
				{Type: EndOfQuery},
			},
		},
		{
			input: `"say \"hi\"" C:\\x`,
			want: []Token{
				{Type: Text, Value: `say "hi"`},
				{Type: Qualifier, Value: "C"},
				{Type: Text, Value: `\\x`},
				{Type: EndOfQuery},
			},
		},
		{
			input: "label:or,not",
			want: []Token{
				{Type: Qualifier, Value: "label"},
				{Type: Text, Value: "or"},
				{Type: Comma, Value: ","},
				{Type: Text, Value: "not"},
				{Type: EndOfQuery},
			},
		},
		{
			input: "#12abc #7",
			want: []Token{
				{Type: Text, Value: "#12abc"},
				{Type: Id, Value: "7"},
				{Type: EndOfQuery},
			},
		},
		{
			input: "in-progress *:x",
			want: []Token{
				{Type: Text, Value: "in-progress"},
				{Type: Text, Value: "*:x"},
				{Type: EndOfQuery},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("tokenize error: %v", err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("expected %d tokens, got %d: %v", len(tt.want), len(tokens), tokens)
			}
			for i, want := range tt.want {
				if tokens[i].Type != want.Type || tokens[i].Value != want.Value {
					t.Errorf("token %d: expected %v %q, got %v %q", i, want.Type, want.Value, tokens[i].Type, tokens[i].Value)
				}
			}
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens, err := Tokenize("é status:open\n  (#4)")
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	want := []Pos{
		{Offset: 0, Line: 1, Column: 1},   // é
		{Offset: 3, Line: 1, Column: 3},   // status:
		{Offset: 10, Line: 1, Column: 10}, // open
		{Offset: 17, Line: 2, Column: 3},  // (
		{Offset: 18, Line: 2, Column: 4},  // #4
		{Offset: 20, Line: 2, Column: 6},  // )
		{Offset: 21, Line: 2, Column: 7},  // end
	}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i, p := range want {
		if tokens[i].Pos != p {
			t.Errorf("token %d (%v): expected pos %+v, got %+v", i, tokens[i], p, tokens[i].Pos)
		}
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		input  string
		offset int
	}{
		{`"hello`, 0},
		{`status:open "unterminated \"`, 12},
		{`label:"abc`, 6},
		{"abc \x01", 4},
		{"ab \xff", 3},
		{`"tail\`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			var lexErr *LexError
			if !errors.As(err, &lexErr) {
				t.Fatalf("expected LexError, got %v", err)
			}
			if lexErr.Pos.Offset != tt.offset {
				t.Errorf("expected offset %d, got %d (%v)", tt.offset, lexErr.Pos.Offset, err)
			}
			if !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("expected error to wrap ErrInvalidQuery")
			}
		})
	}
}

func TestTokenizerIsNotRestartable(t *testing.T) {
	tk := NewTokenizer("a")
	first, err := tk.Next()
	if err != nil || first.Type != Text {
		t.Fatalf("expected text token, got %v %v", first, err)
	}
	for i := 0; i < 3; i++ {
		tok, err := tk.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Type != EndOfQuery {
			t.Fatalf("call %d: expected end of query, got %v", i, tok)
		}
	}

	tk = NewTokenizer(`"open`)
	_, err1 := tk.Next()
	_, err2 := tk.Next()
	if err1 == nil || err1 != err2 {
		t.Fatalf("expected the same error twice, got %v and %v", err1, err2)
	}
}

func TestTokenizerAllStopsEarly(t *testing.T) {
	tk := NewTokenizer("a b c d")
	count := 0
	for range tk.All() {
		count++
		if count == 2 {
			break
		}
	}
	tok, err := tk.Next()
	if err != nil || tok.Value != "c" {
		t.Fatalf("expected the sequence to resume at c, got %v %v", tok, err)
	}
}

