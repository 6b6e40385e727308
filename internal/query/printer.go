package query

import "strings"

// String returns the canonical form of q. Parsing it yields a Query equal
// to q.
func (q *Query) String() string {
	if q.IsEmpty() {
		return ""
	}
	var b strings.Builder
	for i, c := range q.Conditions {
		if i > 0 {
			b.WriteByte(' ')
		}
		grouped := c.Kind == KindAnd || (c.Kind == KindOr && len(q.Conditions) > 1)
		writeOperand(&b, c, grouped)
	}
	return b.String()
}

// String returns the canonical form of c.
func (c *Condition) String() string {
	var b strings.Builder
	writeCondition(&b, c)
	return b.String()
}

func writeCondition(b *strings.Builder, c *Condition) {
	switch c.Kind {
	case KindText:
		b.WriteString(quoteText(c.Value))
	case KindQualifier:
		b.WriteString(c.Qualifier)
		b.WriteByte(':')
		for i, v := range c.Values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quoteValue(v))
		}
	case KindNot:
		b.WriteString("not ")
		child := c.Children[0]
		writeOperand(b, child, !child.IsLeaf() && child.Kind != KindNot)
	case KindAnd, KindOr:
		sep := " "
		if c.Kind == KindOr {
			sep = " or "
		}
		for i, child := range c.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			// Implicit and binds tighter than or, so only an and inside an
			// and, or a nested or, needs brackets to survive a re-parse.
			writeOperand(b, child, child.Kind == KindOr || (c.Kind == KindAnd && child.Kind == KindAnd))
		}
	}
}

func writeOperand(b *strings.Builder, c *Condition, grouped bool) {
	if grouped {
		b.WriteByte('(')
	}
	writeCondition(b, c)
	if grouped {
		b.WriteByte(')')
	}
}

// quoteText quotes a free text term when the tokenizer would not read it
// back as a single Text token.
func quoteText(s string) string {
	switch strings.ToLower(s) {
	case "and", "or", "not":
		return quote(s)
	}
	if s == "" || s[0] == '-' || s[0] == '#' {
		return quote(s)
	}
	for _, r := range s {
		if !isWordRune(r) {
			return quote(s)
		}
	}
	return s
}

// quoteValue quotes a qualifier value. Values may contain colons and
// keywords without quoting.
func quoteValue(s string) string {
	if s == "" {
		return quote(s)
	}
	for _, r := range s {
		if r != ':' && !isWordRune(r) {
			return quote(s)
		}
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
