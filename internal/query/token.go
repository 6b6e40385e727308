// Package query implements the Bileto ticket search language: a lazy
// tokenizer, a recursive-descent parser and the Query/Condition tree they
// produce.
//
//	Query     := [OrExpr] EndOfQuery
//	OrExpr    := AndExpr (Or AndExpr)*
//	AndExpr   := NotExpr ([And] NotExpr)*
//	NotExpr   := Not NotExpr | Atom
//	Atom      := '(' OrExpr ')' | Qualifier ValueList | Id | Text
//	ValueList := Text (Comma Text)*
//
// Two adjacent expressions without an operator are joined by an implicit
// and, which binds tighter than or and looser than not.
//
// The grammar is over tokens, so whitespace may separate a qualifier from
// its first value or a comma from the next value: "status: open" equals
// "status:open". A value written directly after ':' or ',' is text even
// when it spells a keyword. A spaced value is scanned as an ordinary token
// and must be a bare word or a quoted string.
package query

import "fmt"

// TokenType identifies the lexical class of a Token.
type TokenType int

const (
	EndOfQuery TokenType = iota
	And
	Or
	Not
	Id
	Qualifier
	Text
	OpenBracket
	CloseBracket
	Comma
)

func (t TokenType) String() string {
	switch t {
	case EndOfQuery:
		return "end of query"
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case Id:
		return "id"
	case Qualifier:
		return "qualifier"
	case Text:
		return "text"
	case OpenBracket:
		return "("
	case CloseBracket:
		return ")"
	case Comma:
		return ","
	default:
		return "unknown"
	}
}

// Pos locates a token in the raw input. Offset is a byte offset, Line and
// Column are 1-based and Column counts runes.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexeme. Value holds the qualifier name for Qualifier,
// the unescaped content for Text and the digits for Id.
type Token struct {
	Type  TokenType
	Value string
	Pos   Pos
}

func (t Token) String() string {
	switch t.Type {
	case EndOfQuery:
		return "end of query"
	case Text:
		return fmt.Sprintf("%q", t.Value)
	case Qualifier:
		return t.Value + ":"
	case Id:
		return "#" + t.Value
	case And, Or, Not:
		if t.Value != "" {
			return t.Value
		}
		return t.Type.String()
	default:
		return t.Type.String()
	}
}
