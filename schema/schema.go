// Package schema describes the entities the adapter operates on: field
// descriptors, relationship metadata and the registry the query engine
// reads them from. Descriptors are declared once at startup and are
// read-only afterwards.
package schema

import "fmt"

// FieldType is the semantic type of a field. It is a closed set: every
// switch over it in the engine covers all members, so adding a type
// surfaces as a compile-time gap rather than a silent fallthrough.
type FieldType uint8

const (
	TypeString FieldType = iota + 1
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeEnum
	TypeTimestamp
	TypeText
	TypeObject
	TypeList
	TypeRelation
)

var typeNames = map[FieldType]string{
	TypeString:    "string",
	TypeInteger:   "integer",
	TypeFloat:     "float",
	TypeBoolean:   "boolean",
	TypeEnum:      "enum",
	TypeTimestamp: "timestamp",
	TypeText:      "text",
	TypeObject:    "object",
	TypeList:      "list",
	TypeRelation:  "relation",
}

// String returns the lower-case name of the type.
func (t FieldType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", t)
}

// ParseFieldType returns the FieldType named by s.
func ParseFieldType(s string) (FieldType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown field type %q", s)
}

// RelationKind is the kind of a relation field.
type RelationKind uint8

const (
	// OneToOne and OneToMany are both stored as a foreign-key column on
	// the owning table; they differ only in declared cardinality.
	OneToOne RelationKind = iota + 1
	OneToMany
	// ManyToMany is stored through a junction table.
	ManyToMany
	// Reverse is the inverse side of a relation declared on the related
	// entity; it has no physical column of its own.
	Reverse
)

var kindNames = map[RelationKind]string{
	OneToOne:   "one2one",
	OneToMany:  "one2many",
	ManyToMany: "many2many",
	Reverse:    "reverse",
}

// String returns the lower-case name of the kind.
func (k RelationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("RelationKind(%d)", k)
}

// ParseRelationKind returns the RelationKind named by s.
func ParseRelationKind(s string) (RelationKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown relation kind %q", s)
}

// Relation describes the relationship metadata of a relation field.
type Relation struct {
	// Target is the name of the related entity.
	Target string
	// Kind is the relation kind.
	Kind RelationKind
	// Weak marks an owned relation: the related row's lifecycle is tied
	// to the owner (inserted with it, deleted with it).
	Weak bool
}

// Field is the descriptor of a single entity field.
type Field struct {
	Name         string
	Type         FieldType
	Required     bool
	Unique       bool
	Primary      bool
	Multilingual bool
	// Default is the literal default value rendered into DDL.
	Default any
	// MaxLength bounds string columns; 0 means the dialect default.
	MaxLength int
	// ListOf is the element type of a TypeList field.
	ListOf FieldType
	// Relation is set for TypeRelation fields.
	Relation *Relation
}

// Entity is an ordered field schema for one table-backed type.
type Entity struct {
	Name   string
	Fields []Field
}

// Field returns the descriptor of the named field, or nil.
func (e *Entity) Field(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i := range e.Fields {
		names[i] = e.Fields[i].Name
	}
	return names
}

// PrimaryKey returns the name of the field flagged as primary, or "id"
// when none is flagged.
func (e *Entity) PrimaryKey() string {
	for i := range e.Fields {
		if e.Fields[i].Primary {
			return e.Fields[i].Name
		}
	}
	return "id"
}
