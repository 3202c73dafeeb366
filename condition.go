package vesta

import "strings"

// Operator identifies a comparison or logical connective in a condition
// tree. The set is closed; the translator switches over all members.
type Operator uint8

const (
	OpEQ Operator = iota + 1
	OpNEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpLike
	OpNotLike
	OpAnd
	OpOr
)

// symbol returns the SQL rendering of the operator.
func (op Operator) symbol() string {
	switch op {
	case OpEQ:
		return "="
	case OpNEQ:
		return "<>"
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpLike:
		return "LIKE"
	case OpNotLike:
		return "NOT LIKE"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	}
	return ""
}

// Condition is one node of a filter tree: either a leaf comparison or
// an AND/OR connector over child conditions.
type Condition struct {
	Op    Operator
	Field string
	Value any
	// IsField marks Value as a reference to another column instead of
	// a literal.
	IsField bool
	// Model overrides the entity the field is resolved against,
	// e.g. when filtering on a joined table.
	Model    string
	Children []*Condition
}

// IsConnector reports whether the node is an AND/OR connector.
func (c *Condition) IsConnector() bool {
	return c.Op == OpAnd || c.Op == OpOr
}

// FieldValue marks the condition's value as a column reference.
func (c *Condition) FieldValue() *Condition {
	c.IsField = true
	return c
}

// On overrides the entity the condition's field is validated against.
// It changes schema resolution only; the rendered column stays
// qualified by the alias of the query the condition is attached to. A
// condition targeting a joined table therefore belongs in that join's
// nested query filter, where the joined alias is in effect, not on the
// root query.
func (c *Condition) On(model string) *Condition {
	c.Model = model
	return c
}

func leaf(op Operator, field string, v any) *Condition {
	return &Condition{Op: op, Field: field, Value: v}
}

// EQ matches rows where field equals v.
func EQ(field string, v any) *Condition { return leaf(OpEQ, field, v) }

// NEQ matches rows where field does not equal v.
func NEQ(field string, v any) *Condition { return leaf(OpNEQ, field, v) }

// GT matches rows where field is greater than v.
func GT(field string, v any) *Condition { return leaf(OpGT, field, v) }

// GTE matches rows where field is greater than or equal to v.
func GTE(field string, v any) *Condition { return leaf(OpGTE, field, v) }

// LT matches rows where field is less than v.
func LT(field string, v any) *Condition { return leaf(OpLT, field, v) }

// LTE matches rows where field is less than or equal to v.
func LTE(field string, v any) *Condition { return leaf(OpLTE, field, v) }

// Like matches rows where field matches the LIKE pattern v.
func Like(field string, v any) *Condition { return leaf(OpLike, field, v) }

// NotLike matches rows where field does not match the LIKE pattern v.
func NotLike(field string, v any) *Condition { return leaf(OpNotLike, field, v) }

// And combines conditions with AND.
func And(children ...*Condition) *Condition {
	return &Condition{Op: OpAnd, Children: children}
}

// Or combines conditions with OR.
func Or(children ...*Condition) *Condition {
	return &Condition{Op: OpOr, Children: children}
}

// compileCondition translates a condition tree into a parenthesized SQL
// boolean fragment against the given alias, appending bound parameters
// to b. An empty connector, or a leaf naming a field absent from the
// schema, compiles to the empty string and is dropped by its parent, so
// the output never contains a dangling AND/OR.
func (cp *compiler) compileCondition(entity string, c *Condition, alias string, b *builder) string {
	if c == nil {
		return ""
	}
	if c.IsConnector() {
		parts := make([]string, 0, len(c.Children))
		for _, child := range c.Children {
			if s := cp.compileCondition(entity, child, alias, b); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return ""
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "(" + strings.Join(parts, " "+c.Op.symbol()+" ") + ")"
	}
	model := entity
	if c.Model != "" {
		model = c.Model
	}
	// A leaf naming an unknown field is skipped, not raised: conditions
	// may carry stale relation names and must not poison the statement.
	if cp.reg.Field(model, c.Field) == nil {
		return ""
	}
	lhs := b.qualify(alias, c.Field)
	switch {
	case c.IsField:
		other, ok := c.Value.(string)
		if !ok || cp.reg.Field(model, other) == nil {
			return ""
		}
		return "(" + lhs + " " + c.Op.symbol() + " " + b.qualify(alias, other) + ")"
	case c.Value == nil:
		switch c.Op {
		case OpEQ:
			return "(" + lhs + " IS NULL)"
		case OpNEQ:
			return "(" + lhs + " IS NOT NULL)"
		default:
			return ""
		}
	default:
		return "(" + lhs + " " + c.Op.symbol() + " " + b.arg(c.Value) + ")"
	}
}
