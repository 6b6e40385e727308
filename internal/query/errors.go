package query

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is wrapped by every LexError and SyntaxError so callers
// can test for user input errors with errors.Is.
var ErrInvalidQuery = errors.New("invalid query")

// LexError reports malformed raw text.
type LexError struct {
	Pos     Pos
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s at %s (offset %d)", e.Message, e.Pos, e.Pos.Offset)
}

func (e *LexError) Unwrap() error {
	return ErrInvalidQuery
}

// SyntaxError reports a token sequence that does not match the grammar.
type SyntaxError struct {
	Pos      Pos
	Expected string
	Found    Token
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("unexpected %s at %s (offset %d): expecting %s", e.Found, e.Pos, e.Pos.Offset, e.Expected)
}

func (e *SyntaxError) Unwrap() error {
	return ErrInvalidQuery
}

// ErrorPos returns the position carried by a LexError or SyntaxError found
// in err's chain.
func ErrorPos(err error) (Pos, bool) {
	var lexErr *LexError
	if errors.As(err, &lexErr) {
		return lexErr.Pos, true
	}
	var synErr *SyntaxError
	if errors.As(err, &synErr) {
		return synErr.Pos, true
	}
	return Pos{}, false
}
