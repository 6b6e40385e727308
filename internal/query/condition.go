package query

import (
	"errors"
	"fmt"
	"slices"
)

// Kind tags the variant held by a Condition.
type Kind int

const (
	KindText Kind = iota
	KindQualifier
	KindNot
	KindAnd
	KindOr
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindQualifier:
		return "qualifier"
	case KindNot:
		return "not"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Condition is a node of the query tree.
//
//   - KindText: Value is a free text term.
//   - KindQualifier: Qualifier names the field, Values are alternatives.
//   - KindNot: exactly one child.
//   - KindAnd, KindOr: two children or more.
type Condition struct {
	Kind      Kind         `json:"kind"`
	Qualifier string       `json:"qualifier,omitempty"`
	Value     string       `json:"value,omitempty"`
	Values    []string     `json:"values,omitempty"`
	Children  []*Condition `json:"children,omitempty"`
	Pos       Pos          `json:"-"`
}

// NewText returns a free text condition.
func NewText(value string) *Condition {
	return &Condition{Kind: KindText, Value: value}
}

// NewQualifier returns a qualifier condition matching any of values.
func NewQualifier(name string, values ...string) *Condition {
	return &Condition{Kind: KindQualifier, Qualifier: name, Values: values}
}

// NewNot negates child.
func NewNot(child *Condition) *Condition {
	return &Condition{Kind: KindNot, Children: []*Condition{child}}
}

// NewAnd joins children with and.
func NewAnd(children ...*Condition) *Condition {
	return &Condition{Kind: KindAnd, Children: children}
}

// NewOr joins children with or.
func NewOr(children ...*Condition) *Condition {
	return &Condition{Kind: KindOr, Children: children}
}

// IsLeaf reports whether c is a text or qualifier condition.
func (c *Condition) IsLeaf() bool {
	return c.Kind == KindText || c.Kind == KindQualifier
}

// Validate checks the structural invariants of c and its descendants.
func (c *Condition) Validate() error {
	if c == nil {
		return errors.New("nil condition")
	}
	switch c.Kind {
	case KindText:
		if c.Value == "" {
			return errors.New("text condition without value")
		}
	case KindQualifier:
		if c.Qualifier == "" {
			return errors.New("qualifier condition without name")
		}
		if len(c.Values) == 0 {
			return fmt.Errorf("qualifier %q without value", c.Qualifier)
		}
		for _, v := range c.Values {
			if v == "" {
				return fmt.Errorf("qualifier %q with empty value", c.Qualifier)
			}
		}
	case KindNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("not condition with %d children", len(c.Children))
		}
	case KindAnd, KindOr:
		if len(c.Children) < 2 {
			return fmt.Errorf("%s condition with %d children", c.Kind, len(c.Children))
		}
	default:
		return fmt.Errorf("unknown condition kind %d", c.Kind)
	}
	for _, child := range c.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether c and o describe the same tree. Positions are
// ignored.
func (c *Condition) Equal(o *Condition) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Kind != o.Kind || c.Qualifier != o.Qualifier || c.Value != o.Value {
		return false
	}
	if !slices.Equal(c.Values, o.Values) {
		return false
	}
	return slices.EqualFunc(c.Children, o.Children, (*Condition).Equal)
}

// Walk calls fn for c and every descendant in depth-first order. Returning
// false from fn skips the children of that node.
func (c *Condition) Walk(fn func(*Condition) bool) {
	if c == nil || !fn(c) {
		return
	}
	for _, child := range c.Children {
		child.Walk(fn)
	}
}

// Query is the parsed form of a search string: an ordered list of
// conditions that must all hold.
type Query struct {
	Conditions []*Condition `json:"conditions"`
}

// IsEmpty reports whether q has no condition.
func (q *Query) IsEmpty() bool {
	return q == nil || len(q.Conditions) == 0
}

// Condition returns the root of q as a single condition: nil when q is
// empty, the only condition, or an and of all of them.
func (q *Query) Condition() *Condition {
	switch {
	case q.IsEmpty():
		return nil
	case len(q.Conditions) == 1:
		return q.Conditions[0]
	default:
		return NewAnd(q.Conditions...)
	}
}

// Validate checks every condition of q.
func (q *Query) Validate() error {
	for i, c := range q.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// Equal reports whether q and o hold equal conditions in the same order.
func (q *Query) Equal(o *Query) bool {
	if q.IsEmpty() || o.IsEmpty() {
		return q.IsEmpty() == o.IsEmpty()
	}
	return slices.EqualFunc(q.Conditions, o.Conditions, (*Condition).Equal)
}

// Qualifiers returns the distinct qualifier names used in q, in order of
// first appearance.
func (q *Query) Qualifiers() []string {
	var names []string
	for _, c := range q.Conditions {
		c.Walk(func(n *Condition) bool {
			if n.Kind == KindQualifier && !slices.Contains(names, n.Qualifier) {
				names = append(names, n.Qualifier)
			}
			return true
		})
	}
	return names
}
