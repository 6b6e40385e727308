package query

import "fmt"

// maxDepth bounds bracket and not nesting so that hostile input cannot
// exhaust the stack.
const maxDepth = 128

// TokenSource yields tokens one at a time. *Tokenizer implements it.
type TokenSource interface {
	Next() (Token, error)
}

// Parser builds a Query from a token source by recursive descent, with a
// single token of lookahead.
type Parser struct {
	src     TokenSource
	current Token
	depth   int
}

// Parse tokenizes and parses input.
func Parse(input string) (*Query, error) {
	return ParseTokens(NewTokenizer(input))
}

// ParseTokens parses the tokens produced by src.
func ParseTokens(src TokenSource) (*Query, error) {
	p := &Parser{src: src}
	return p.parse()
}

func (p *Parser) advance() error {
	tok, err := p.src.Next()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{
		Pos:      p.current.Pos,
		Expected: fmt.Sprintf(format, args...),
		Found:    p.current,
	}
}

func (p *Parser) parse() (*Query, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	q := &Query{Conditions: []*Condition{}}
	if p.current.Type == EndOfQuery {
		return q, nil
	}
	branches, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != EndOfQuery {
		return nil, p.errorf("end of query")
	}
	if len(branches) == 1 {
		q.Conditions = branches[0]
	} else {
		q.Conditions = []*Condition{orNode(branches)}
	}
	return q, nil
}

// parseOr handles or chains (lowest precedence). Each branch is the operand
// list of an and chain.
func (p *Parser) parseOr() ([][]*Condition, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	branches := [][]*Condition{first}
	for p.current.Type == Or {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.atOperand() {
			return nil, p.errorf("expression after 'or'")
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		branches = append(branches, next)
	}
	return branches, nil
}

// parseAnd handles explicit and implicit and chains.
func (p *Parser) parseAnd() ([]*Condition, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	operands := []*Condition{first}
	for {
		switch {
		case p.current.Type == And:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if !p.atOperand() {
				return nil, p.errorf("expression after 'and'")
			}
		case p.atOperand():
		default:
			return operands, nil
		}
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
}

// parseNot handles not, which is right-associative.
func (p *Parser) parseNot() (*Condition, error) {
	if p.current.Type != Not {
		return p.parseAtom()
	}
	pos := p.current.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if !p.atOperand() {
		return nil, p.errorf("expression after 'not'")
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	child, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	c := NewNot(child)
	c.Pos = pos
	return c, nil
}

// parseAtom handles '(' expr ')', qualifier values, #id and free text.
func (p *Parser) parseAtom() (*Condition, error) {
	tok := p.current
	switch tok.Type {
	case OpenBracket:
		return p.parseGroup()
	case Qualifier:
		return p.parseQualifier()
	case Id:
		if err := p.advance(); err != nil {
			return nil, err
		}
		c := NewQualifier("id", tok.Value)
		c.Pos = tok.Pos
		return c, nil
	case Text:
		if tok.Value == "" {
			return nil, p.errorf("non-empty text")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		c := NewText(tok.Value)
		c.Pos = tok.Pos
		return c, nil
	default:
		return nil, p.errorf("expression")
	}
}

func (p *Parser) parseGroup() (*Condition, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if !p.atOperand() {
		return nil, p.errorf("expression after '('")
	}
	branches, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != CloseBracket {
		return nil, p.errorf("')'")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return orNode(branches), nil
}

func (p *Parser) parseQualifier() (*Condition, error) {
	tok := p.current
	if err := p.advance(); err != nil {
		return nil, err
	}
	c := NewQualifier(tok.Value)
	c.Pos = tok.Pos
	for {
		if p.current.Type != Text || p.current.Value == "" {
			if len(c.Values) == 0 {
				return nil, p.errorf("value for qualifier %q", tok.Value)
			}
			return nil, p.errorf("value after ','")
		}
		c.Values = append(c.Values, p.current.Value)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.Type != Comma {
			return c, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

// atOperand reports whether the current token can start an expression.
func (p *Parser) atOperand() bool {
	switch p.current.Type {
	case Not, OpenBracket, Qualifier, Id, Text:
		return true
	default:
		return false
	}
}

func (p *Parser) enter() error {
	if p.depth >= maxDepth {
		return p.errorf("at most %d nested expressions", maxDepth)
	}
	p.depth++
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

func andNode(operands []*Condition) *Condition {
	if len(operands) == 1 {
		return operands[0]
	}
	c := NewAnd(operands...)
	c.Pos = operands[0].Pos
	return c
}

func orNode(branches [][]*Condition) *Condition {
	if len(branches) == 1 {
		return andNode(branches[0])
	}
	children := make([]*Condition, len(branches))
	for i, b := range branches {
		children[i] = andNode(b)
	}
	c := NewOr(children...)
	c.Pos = children[0].Pos
	return c
}
