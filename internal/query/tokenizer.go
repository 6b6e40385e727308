package query

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

const eof = -1

// stateFn represents the state of the scanner as a function that returns
// the next state.
type stateFn func(*Tokenizer) stateFn

// Tokenizer scans a raw query into tokens on demand. It is not safe for
// concurrent use and cannot be restarted: once EndOfQuery or an error has
// been returned, every further call to Next returns the same result.
type Tokenizer struct {
	input   string
	start   int // start offset of the pending token
	pos     int // current offset in input
	width   int // width of the last rune read
	state   stateFn
	pending []Token
	final   Token
	err     error

	// cursor caches the last computed position so that line and column
	// tracking stays linear over the input.
	cursor Pos
}

// NewTokenizer returns a Tokenizer over input.
func NewTokenizer(input string) *Tokenizer {
	return &Tokenizer{
		input:  input,
		state:  lexMain,
		cursor: Pos{Offset: 0, Line: 1, Column: 1},
	}
}

// Next returns the next token. The last token of a successful scan is
// always EndOfQuery.
func (t *Tokenizer) Next() (Token, error) {
	for len(t.pending) == 0 && t.err == nil && t.state != nil {
		t.state = t.state(t)
	}
	if len(t.pending) > 0 {
		tok := t.pending[0]
		t.pending = t.pending[1:]
		if tok.Type == EndOfQuery {
			t.final = tok
		}
		return tok, nil
	}
	if t.err != nil {
		return Token{}, t.err
	}
	return t.final, nil
}

// All returns the remaining tokens as a sequence. Iteration stops after
// EndOfQuery or after the first error.
func (t *Tokenizer) All() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		for {
			tok, err := t.Next()
			if !yield(tok, err) || err != nil || tok.Type == EndOfQuery {
				return
			}
		}
	}
}

// Tokenize scans the whole input and returns its tokens, EndOfQuery
// included.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	for tok, err := range NewTokenizer(input).All() {
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func (t *Tokenizer) next() rune {
	if t.pos >= len(t.input) {
		t.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(t.input[t.pos:])
	t.width = w
	t.pos += w
	return r
}

// backup steps back one rune. Can be called only once per call of next.
func (t *Tokenizer) backup() {
	t.pos -= t.width
}

func (t *Tokenizer) peek() rune {
	r := t.next()
	t.backup()
	return r
}

func (t *Tokenizer) ignore() {
	t.start = t.pos
}

// invalid reports whether the last rune read was an undecodable byte.
func (t *Tokenizer) invalid(r rune) bool {
	return r == utf8.RuneError && t.width == 1
}

func (t *Tokenizer) emit(typ TokenType) {
	t.emitValue(typ, t.input[t.start:t.pos])
}

func (t *Tokenizer) emitValue(typ TokenType, value string) {
	t.pending = append(t.pending, Token{Type: typ, Value: value, Pos: t.posAt(t.start)})
	t.start = t.pos
}

func (t *Tokenizer) errorf(offset int, format string, args ...any) stateFn {
	t.err = &LexError{Pos: t.posAt(offset), Message: fmt.Sprintf(format, args...)}
	return nil
}

// posAt converts a byte offset into a Pos. Offsets are requested in
// increasing order, so the scan resumes from the cached cursor.
func (t *Tokenizer) posAt(offset int) Pos {
	if offset < t.cursor.Offset {
		t.cursor = Pos{Offset: 0, Line: 1, Column: 1}
	}
	p := t.cursor
	for p.Offset < offset {
		r, w := utf8.DecodeRuneInString(t.input[p.Offset:])
		p.Offset += w
		if r == '\n' {
			p.Line++
			p.Column = 1
		} else {
			p.Column++
		}
	}
	t.cursor = p
	return p
}

func lexMain(t *Tokenizer) stateFn {
	r := t.next()
	switch {
	case r == eof:
		t.emit(EndOfQuery)
		return nil
	case t.invalid(r):
		return t.errorf(t.pos-t.width, "invalid UTF-8 encoding")
	case unicode.IsSpace(r):
		t.ignore()
	case r == '(':
		t.emit(OpenBracket)
	case r == ')':
		t.emit(CloseBracket)
	case r == ',':
		t.emit(Comma)
	case r == '"':
		return t.lexQuoted(lexMain)
	case unicode.IsControl(r):
		return t.errorf(t.pos-t.width, "invalid character %U", r)
	case r == '#':
		return lexID
	case r == '-':
		if isTermStart(t.peek()) {
			t.emit(Not)
			return lexMain
		}
		return lexWord
	default:
		t.backup()
		return lexWord
	}
	return lexMain
}

// lexID scans the digits of a "#42" ticket reference. A '#' not followed
// by a digit starts an ordinary word.
func lexID(t *Tokenizer) stateFn {
	digits := t.pos
	for isDigit(t.peek()) {
		t.next()
	}
	if t.pos == digits || isWordRune(t.peek()) {
		return lexWord
	}
	t.emitValue(Id, t.input[digits:t.pos])
	return lexMain
}

// lexWord scans an unquoted run. An identifier directly followed by ':'
// becomes a Qualifier and switches to value scanning.
func lexWord(t *Tokenizer) stateFn {
	for {
		r := t.next()
		if r == ':' {
			name := t.input[t.start : t.pos-1]
			if isIdentifier(name) {
				t.emitValue(Qualifier, name)
				return lexValue
			}
			continue
		}
		if r == eof || t.invalid(r) || !isWordRune(r) {
			t.backup()
			break
		}
	}
	word := t.input[t.start:t.pos]
	switch strings.ToLower(word) {
	case "and":
		t.emit(And)
	case "or":
		t.emit(Or)
	case "not":
		t.emit(Not)
	default:
		t.emit(Text)
	}
	return lexMain
}

// lexValue scans one qualifier value. Colons are part of the value and
// keywords are plain text here.
func lexValue(t *Tokenizer) stateFn {
	r := t.peek()
	switch {
	case r == '"':
		t.next()
		return t.lexQuoted(lexValueEnd)
	case r == ':' || (isWordRune(r) && !t.peekInvalid()):
		for {
			r = t.next()
			if r == eof || t.invalid(r) || (r != ':' && !isWordRune(r)) {
				t.backup()
				break
			}
		}
		t.emit(Text)
		return lexValueEnd
	default:
		return lexMain
	}
}

func lexValueEnd(t *Tokenizer) stateFn {
	if t.peek() == ',' {
		t.next()
		t.emit(Comma)
		return lexValue
	}
	return lexMain
}

// lexQuoted scans a double-quoted string whose opening quote has already
// been consumed, then continues with resume.
func (t *Tokenizer) lexQuoted(resume stateFn) stateFn {
	quote := t.start
	var b strings.Builder
	for {
		r := t.next()
		switch {
		case r == eof:
			return t.errorf(quote, "unterminated quoted string")
		case t.invalid(r):
			return t.errorf(t.pos-t.width, "invalid UTF-8 encoding")
		case r == '\\':
			r = t.next()
			if r == eof {
				return t.errorf(quote, "unterminated quoted string")
			}
			if t.invalid(r) {
				return t.errorf(t.pos-t.width, "invalid UTF-8 encoding")
			}
			b.WriteRune(r)
		case r == '"':
			t.emitValue(Text, b.String())
			return resume
		default:
			b.WriteRune(r)
		}
	}
}

func (t *Tokenizer) peekInvalid() bool {
	r := t.next()
	bad := t.invalid(r)
	t.backup()
	return bad
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isReserved(r rune) bool {
	return strings.ContainsRune(`()",:`, r)
}

func isWordRune(r rune) bool {
	return r != eof && !unicode.IsSpace(r) && !unicode.IsControl(r) && !isReserved(r)
}

// isTermStart reports whether r can open the operand of a '-' negation.
func isTermStart(r rune) bool {
	return r == '(' || r == '"' || r == '#' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

func isIdentifier(s string) bool {
	if s == "" || s[0] == '-' {
		return false
	}
	for _, r := range s {
		if !isIdentRune(r) {
			return false
		}
	}
	return true
}
