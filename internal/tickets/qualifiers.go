package tickets

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bileto/ticket-search/internal/query"
	apperrors "github.com/bileto/ticket-search/pkg/errors"
)

// Field is a searchable attribute of a ticket.
type Field string

const (
	FieldID           Field = "id"
	FieldUID          Field = "uid"
	FieldStatus       Field = "status"
	FieldType         Field = "type"
	FieldPriority     Field = "priority"
	FieldUrgency      Field = "urgency"
	FieldImpact       Field = "impact"
	FieldAssignee     Field = "assignee"
	FieldRequester    Field = "requester"
	FieldInvolves     Field = "involves"
	FieldTeam         Field = "team"
	FieldOrganization Field = "org"
	FieldLabel        Field = "label"
)

type Op int

const (
	// OpText matches Text against the title and the messages.
	OpText Op = iota
	// OpIn matches when Field equals one of IDs, Values or Emails.
	OpIn
	// OpMissing matches when Field is unset.
	OpMissing
	OpNot
	OpAnd
	OpOr
)

// Filter is a query whose qualifiers have been resolved against the ticket
// model. Values of user, team and organization fields are split by kind:
// numeric ids go to IDs, e-mails to Emails and names to Values. Names and
// e-mails are lower case.
type Filter struct {
	Op       Op
	Field    Field
	Text     string
	IDs      []int64
	Values   []string
	Emails   []string
	Children []*Filter
}

// QualifierError reports a qualifier or a value the ticket model does not
// know. It unwraps to ErrUnknownQualifier or ErrInvalidInput.
type QualifierError struct {
	Pos       query.Pos
	Qualifier string
	Message   string
	Err       error
}

func (e *QualifierError) Error() string {
	return fmt.Sprintf("%s at %s", e.Message, e.Pos)
}

func (e *QualifierError) Unwrap() error {
	return e.Err
}

type valueKind int

const (
	kindID valueKind = iota
	kindUID
	kindEnum
	kindUser
	kindNamed
	kindLabel
	kindNo
)

type qualifierDef struct {
	field Field
	kind  valueKind
	enum  []string
}

var qualifiers = map[string]qualifierDef{
	"id":           {field: FieldID, kind: kindID},
	"uid":          {field: FieldUID, kind: kindUID},
	"status":       {field: FieldStatus, kind: kindEnum},
	"type":         {field: FieldType, kind: kindEnum, enum: []string{TypeRequest, TypeIncident}},
	"priority":     {field: FieldPriority, kind: kindEnum, enum: Levels},
	"urgency":      {field: FieldUrgency, kind: kindEnum, enum: Levels},
	"impact":       {field: FieldImpact, kind: kindEnum, enum: Levels},
	"assignee":     {field: FieldAssignee, kind: kindUser},
	"requester":    {field: FieldRequester, kind: kindUser},
	"involves":     {field: FieldInvolves, kind: kindUser},
	"team":         {field: FieldTeam, kind: kindNamed},
	"org":          {field: FieldOrganization, kind: kindNamed},
	"organization": {field: FieldOrganization, kind: kindNamed},
	"label":        {field: FieldLabel, kind: kindLabel},
	"no":           {kind: kindNo},
}

// missingFields are the values accepted by no:.
var missingFields = map[string]Field{
	"assignee": FieldAssignee,
	"team":     FieldTeam,
	"label":    FieldLabel,
}

// KnownQualifiers returns the accepted qualifier names, sorted.
func KnownQualifiers() []string {
	names := make([]string, 0, len(qualifiers))
	for name := range qualifiers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UsesActor reports whether q refers to the acting user through @me.
func UsesActor(q *query.Query) bool {
	found := false
	for _, c := range q.Conditions {
		c.Walk(func(n *query.Condition) bool {
			if n.Kind == query.KindQualifier && slices.ContainsFunc(n.Values, isActorRef) {
				found = true
			}
			return !found
		})
	}
	return found
}

// isActorRef reports whether a qualifier value names the acting user.
func isActorRef(value string) bool {
	return strings.EqualFold(value, "@me")
}

// Compile resolves q for the acting user. It returns nil for an empty query.
// actor is the id of the user running the search, 0 when anonymous.
func Compile(q *query.Query, actor int64) (*Filter, error) {
	if q.IsEmpty() {
		return nil, nil
	}
	return compile(q.Condition(), actor)
}

func compile(c *query.Condition, actor int64) (*Filter, error) {
	switch c.Kind {
	case query.KindText:
		return &Filter{Op: OpText, Text: c.Value}, nil
	case query.KindQualifier:
		return compileQualifier(c, actor)
	case query.KindNot, query.KindAnd, query.KindOr:
		f := &Filter{Op: compositeOps[c.Kind], Children: make([]*Filter, 0, len(c.Children))}
		for _, child := range c.Children {
			cf, err := compile(child, actor)
			if err != nil {
				return nil, err
			}
			f.Children = append(f.Children, cf)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("compiling condition: unknown kind %s", c.Kind)
	}
}

var compositeOps = map[query.Kind]Op{
	query.KindNot: OpNot,
	query.KindAnd: OpAnd,
	query.KindOr:  OpOr,
}

func compileQualifier(c *query.Condition, actor int64) (*Filter, error) {
	name := strings.ToLower(c.Qualifier)
	def, ok := qualifiers[name]
	if !ok {
		return nil, &QualifierError{
			Pos:       c.Pos,
			Qualifier: c.Qualifier,
			Message:   fmt.Sprintf("unknown qualifier %q", c.Qualifier),
			Err:       apperrors.ErrUnknownQualifier,
		}
	}
	invalid := func(value string) error {
		return &QualifierError{
			Pos:       c.Pos,
			Qualifier: c.Qualifier,
			Message:   fmt.Sprintf("invalid value %q for qualifier %q", value, c.Qualifier),
			Err:       apperrors.ErrInvalidInput,
		}
	}

	if def.kind == kindNo {
		if len(c.Values) != 1 {
			return nil, invalid(strings.Join(c.Values, ","))
		}
		field, ok := missingFields[strings.ToLower(c.Values[0])]
		if !ok {
			return nil, invalid(c.Values[0])
		}
		return &Filter{Op: OpMissing, Field: field}, nil
	}

	f := &Filter{Op: OpIn, Field: def.field}
	for _, raw := range c.Values {
		value := strings.ToLower(raw)
		switch def.kind {
		case kindID:
			id, ok := parseID(strings.TrimPrefix(value, "#"))
			if !ok {
				return nil, invalid(raw)
			}
			f.IDs = appendUnique(f.IDs, id)
		case kindUID:
			f.Values = appendUnique(f.Values, value)
		case kindEnum:
			expanded, ok := expandEnum(def, value)
			if !ok {
				return nil, invalid(raw)
			}
			for _, v := range expanded {
				f.Values = appendUnique(f.Values, v)
			}
		case kindUser:
			switch {
			case isActorRef(value):
				if actor == 0 {
					return nil, &QualifierError{
						Pos:       c.Pos,
						Qualifier: c.Qualifier,
						Message:   "@me requires an authenticated user",
						Err:       apperrors.ErrInvalidInput,
					}
				}
				f.IDs = appendUnique(f.IDs, actor)
			case strings.Contains(value, "@"):
				f.Emails = appendUnique(f.Emails, value)
			default:
				id, ok := parseID(strings.TrimPrefix(value, "id:"))
				if !ok {
					return nil, invalid(raw)
				}
				f.IDs = appendUnique(f.IDs, id)
			}
		case kindNamed:
			if id, ok := parseID(strings.TrimPrefix(value, "id:")); ok {
				f.IDs = appendUnique(f.IDs, id)
			} else {
				f.Values = appendUnique(f.Values, value)
			}
		case kindLabel:
			f.Values = appendUnique(f.Values, value)
		}
	}
	return f, nil
}

func expandEnum(def qualifierDef, value string) ([]string, bool) {
	if def.field != FieldStatus {
		return []string{value}, slices.Contains(def.enum, value)
	}
	if statuses, ok := virtualStatuses[value]; ok {
		out := make([]string, len(statuses))
		for i, s := range statuses {
			out[i] = string(s)
		}
		return out, true
	}
	return []string{value}, slices.Contains(Statuses, Status(value))
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func appendUnique[T comparable](s []T, v T) []T {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
