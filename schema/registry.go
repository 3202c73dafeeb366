package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/language"
)

// Registry holds the entity schemas for one process. It is built once at
// startup; every derived lookup (primary keys, table names) is computed
// at construction so reads never mutate shared state.
type Registry struct {
	entities map[string]*Entity
	order    []string
	pks      map[string]string
	tables   map[string]string
	deps     map[string][]string
	langs    []language.Tag
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLanguages declares the languages translation tables are created
// for. Tags are validated with golang.org/x/text/language.
func WithLanguages(tags ...string) Option {
	return func(r *Registry) error {
		for _, t := range tags {
			tag, err := language.Parse(t)
			if err != nil {
				return fmt.Errorf("schema: invalid language tag %q: %w", t, err)
			}
			r.langs = append(r.langs, tag)
		}
		return nil
	}
}

// NewRegistry builds a Registry from the given entities.
func NewRegistry(entities []*Entity, opts ...Option) (*Registry, error) {
	r := &Registry{
		entities: make(map[string]*Entity, len(entities)),
		order:    make([]string, 0, len(entities)),
		pks:      make(map[string]string, len(entities)),
		tables:   make(map[string]string, len(entities)),
		deps:     make(map[string][]string, len(entities)),
	}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("schema: entity with empty name")
		}
		if _, ok := r.entities[e.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate entity %q", e.Name)
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
		r.pks[e.Name] = e.PrimaryKey()
		r.tables[e.Name] = inflect.Tableize(e.Name)
	}
	for _, name := range r.order {
		e := r.entities[name]
		for i := range e.Fields {
			f := &e.Fields[i]
			if f.Type != TypeRelation || f.Relation == nil {
				continue
			}
			target := f.Relation.Target
			dup := false
			for _, d := range r.deps[target] {
				if d == name {
					dup = true
					break
				}
			}
			if !dup {
				r.deps[target] = append(r.deps[target], name)
			}
		}
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Entity returns the named entity schema, or nil.
func (r *Registry) Entity(name string) *Entity {
	return r.entities[name]
}

// Entities returns all entity schemas in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.order))
	for i, name := range r.order {
		out[i] = r.entities[name]
	}
	return out
}

// Fields returns the ordered field list of the named entity.
func (r *Registry) Fields(entity string) []Field {
	if e := r.entities[entity]; e != nil {
		return e.Fields
	}
	return nil
}

// FieldNames returns the ordered field names of the named entity.
func (r *Registry) FieldNames(entity string) []string {
	if e := r.entities[entity]; e != nil {
		return e.FieldNames()
	}
	return nil
}

// Field returns the descriptor of entity.name, or nil.
func (r *Registry) Field(entity, name string) *Field {
	if e := r.entities[entity]; e != nil {
		return e.Field(name)
	}
	return nil
}

// PrimaryKey returns the primary-key field name of the entity. The
// lookup is precomputed at construction; unknown entities fall back to
// "id".
func (r *Registry) PrimaryKey(entity string) string {
	if pk, ok := r.pks[entity]; ok {
		return pk
	}
	return "id"
}

// Table returns the table name backing the entity, e.g. Post -> posts.
func (r *Registry) Table(entity string) string {
	if t, ok := r.tables[entity]; ok {
		return t
	}
	return inflect.Tableize(entity)
}

// JunctionTable returns the junction table name for a many-to-many
// relation field, derived from the owner and relation names,
// e.g. (Post, tags) -> post_tags.
func (r *Registry) JunctionTable(entity, field string) string {
	return inflect.Underscore(entity) + "_" + inflect.Underscore(field)
}

// JunctionColumns returns the owner and related key column names of a
// junction table, e.g. (Post, tags) -> (post_id, tag_id).
func (r *Registry) JunctionColumns(entity, field string) (owner, related string) {
	return inflect.ForeignKey(entity), inflect.ForeignKey(inflect.Singularize(field))
}

// ListTable returns the side table name storing a list-valued field,
// e.g. (Post, keywords) -> post_keywords_list.
func (r *Registry) ListTable(entity, field string) string {
	return inflect.Underscore(entity) + "_" + inflect.Underscore(field) + "_list"
}

// ListColumns returns the owner key and value column names of a list
// table, e.g. Post -> (post_id, value).
func (r *Registry) ListColumns(entity string) (fk, value string) {
	return inflect.ForeignKey(entity), "value"
}

// TranslationTable returns the companion translation table name for an
// entity with multilingual fields, e.g. Post -> post_translations.
func (r *Registry) TranslationTable(entity string) string {
	return inflect.Underscore(entity) + "_translations"
}

// Languages returns the languages configured for translation tables.
func (r *Registry) Languages() []language.Tag {
	return r.langs
}

// Dependents returns the entities declaring a relation that targets the
// named entity, in registration order. Results materialized onto a
// dependent embed rows of the target, so a write to the target stales
// the dependent's reads too.
func (r *Registry) Dependents(entity string) []string {
	return r.deps[entity]
}

// ReverseField resolves the inverse side of a reverse relation: the
// field on the related entity whose relation target is entity. It
// returns the related entity and that field.
func (r *Registry) ReverseField(entity string, rel *Relation) (*Entity, *Field, error) {
	related := r.entities[rel.Target]
	if related == nil {
		return nil, nil, fmt.Errorf("schema: unknown entity %q", rel.Target)
	}
	for i := range related.Fields {
		f := &related.Fields[i]
		if f.Type == TypeRelation && f.Relation != nil && f.Relation.Target == entity && f.Relation.Kind != Reverse {
			return related, f, nil
		}
	}
	return nil, nil, fmt.Errorf("schema: no field on %q relates back to %q", rel.Target, entity)
}
