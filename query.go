package vesta

import (
	"strings"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

// JoinKind is the kind of a join specification.
type JoinKind uint8

const (
	LeftJoin JoinKind = iota
	InnerJoin
	RightJoin
	FullJoin
)

// keyword returns the SQL join keyword. Unrecognized kinds fall back
// to LEFT JOIN.
func (k JoinKind) keyword() string {
	switch k {
	case InnerJoin:
		return "INNER JOIN"
	case RightJoin:
		return "RIGHT OUTER JOIN"
	case FullJoin:
		return "FULL OUTER JOIN"
	default:
		return "LEFT JOIN"
	}
}

// Join requests a join through a local foreign-key field, carrying a
// nested query compiled against the joined table.
type Join struct {
	Kind  JoinKind
	Field string
	Query *Query
}

// RelationSpec requests a relation to be fetched, optionally narrowing
// the related entity's projected fields.
type RelationSpec struct {
	Name   string
	Fields []string
}

// Rel builds a RelationSpec.
func Rel(name string, fields ...string) RelationSpec {
	return RelationSpec{Name: name, Fields: fields}
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Query is the structured description of a read: target entity, field
// selection, filter tree, ordering, pagination, relation requests and
// joins. It is immutable once compilation starts.
type Query struct {
	Entity    string
	Fields    []string
	Where     *Condition
	Orders    []Order
	Limit     int
	Offset    int
	Page      int
	Relations []RelationSpec
	Joins     []Join
}

// NewQuery returns a query targeting the named entity.
func NewQuery(entity string) *Query {
	return &Query{Entity: entity}
}

// Select sets the projected fields.
func (q *Query) Select(fields ...string) *Query {
	q.Fields = fields
	return q
}

// Filter sets the filter condition tree.
func (q *Query) Filter(c *Condition) *Query {
	q.Where = c
	return q
}

// OrderBy appends a sort key.
func (q *Query) OrderBy(field string, desc bool) *Query {
	q.Orders = append(q.Orders, Order{Field: field, Desc: desc})
	return q
}

// Paginate sets page-based pagination.
func (q *Query) Paginate(page, size int) *Query {
	q.Page, q.Limit = page, size
	return q
}

// Slice sets limit/offset pagination.
func (q *Query) Slice(limit, offset int) *Query {
	q.Limit, q.Offset = limit, offset
	return q
}

// With requests relations by name.
func (q *Query) With(relations ...string) *Query {
	for _, r := range relations {
		q.Relations = append(q.Relations, RelationSpec{Name: r})
	}
	return q
}

// WithSpec requests a relation with an explicit field selection.
func (q *Query) WithSpec(specs ...RelationSpec) *Query {
	q.Relations = append(q.Relations, specs...)
	return q
}

// JoinWith appends a join specification.
func (q *Query) JoinWith(kind JoinKind, field string, nested *Query) *Query {
	q.Joins = append(q.Joins, Join{Kind: kind, Field: field, Query: nested})
	return q
}

// queryParams is the compiled form of a Query: the clause fragments a
// SELECT is assembled from. Bound parameters live on the builder.
type queryParams struct {
	fields     []string
	where      string
	orderBy    string
	pagination string
	join       string
	// defaultOrder records that the ORDER BY was injected for paging
	// determinism rather than requested; joined orderings never
	// displace it.
	defaultOrder bool
}

// compiler translates query descriptors into dialect-specific SQL
// fragments against a schema registry.
type compiler struct {
	reg     *schema.Registry
	dialect string
}

// compileQuery computes the clause set for q against the given alias.
// Relation and join requests naming fields absent from the schema fail
// loudly with a RelationError; that is a programmer error, unlike stale
// condition fields which are dropped silently.
func (cp *compiler) compileQuery(q *Query, alias string, b *builder) (*queryParams, error) {
	ent := cp.reg.Entity(q.Entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", q.Entity)
	}
	p := &queryParams{}

	limit, offset := q.Limit, q.Offset
	if q.Page > 0 && offset == 0 {
		offset = (q.Page - 1) * limit
	}
	orders := q.Orders
	if limit > 0 && len(orders) == 0 {
		// Paged results must be deterministic.
		orders = []Order{{Field: ent.PrimaryKey()}}
		p.defaultOrder = true
	}
	if len(orders) > 0 {
		parts := make([]string, len(orders))
		for i, o := range orders {
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts[i] = b.qualify(alias, o.Field) + dir
		}
		p.orderBy = strings.Join(parts, ", ")
	}
	if limit > 0 {
		p.pagination = b.pagination(limit, offset)
	}

	fields, err := cp.compileFields(q, ent, alias, b)
	if err != nil {
		return nil, err
	}
	p.fields = fields

	p.where = cp.compileCondition(q.Entity, q.Where, alias, b)

	for _, j := range q.Joins {
		if err := cp.compileJoin(q.Entity, j, alias, b, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// compileFields computes the projection list: plain columns qualified
// by the alias, plus a correlated JSON-object sub-select per requested
// one-to-one/one-to-many relation. List fields never project directly
// and many-to-many relations have no column at all.
func (cp *compiler) compileFields(q *Query, ent *schema.Entity, alias string, b *builder) ([]string, error) {
	expanded := make(map[string]bool, len(q.Relations))
	for _, r := range q.Relations {
		expanded[r.Name] = true
	}
	var fields []string
	if len(q.Fields) > 0 {
		for _, name := range q.Fields {
			f := ent.Field(name)
			if f == nil || f.Type == schema.TypeList {
				continue
			}
			if f.Type == schema.TypeRelation && (f.Relation.Kind == schema.ManyToMany || f.Relation.Kind == schema.Reverse) {
				continue
			}
			if f.Type == schema.TypeRelation && expanded[name] {
				continue // projected via the relation sub-select below
			}
			fields = append(fields, b.qualify(alias, name))
		}
	} else {
		for i := range ent.Fields {
			f := &ent.Fields[i]
			switch {
			case f.Type == schema.TypeList:
				continue
			case f.Type == schema.TypeRelation:
				if f.Relation.Kind == schema.ManyToMany || f.Relation.Kind == schema.Reverse {
					continue
				}
				if expanded[f.Name] {
					continue
				}
			}
			fields = append(fields, b.qualify(alias, f.Name))
		}
	}
	for _, r := range q.Relations {
		f := ent.Field(r.Name)
		if f == nil || f.Type != schema.TypeRelation {
			return nil, NewRelationError(q.Entity, r.Name)
		}
		if f.Relation.Kind != schema.OneToOne && f.Relation.Kind != schema.OneToMany {
			continue // many-to-many and reverse resolve through the fan-out pass
		}
		sub, err := cp.relationSubquery(alias, f, r.Fields, b)
		if err != nil {
			return nil, err
		}
		fields = append(fields, sub)
	}
	return fields, nil
}

// relationSubquery builds a correlated scalar sub-select embedding the
// related row as a JSON-object string, matched through the local
// foreign-key column and limited to one row.
func (cp *compiler) relationSubquery(alias string, f *schema.Field, sub []string, b *builder) (string, error) {
	related := cp.reg.Entity(f.Relation.Target)
	if related == nil {
		return "", NewRelationError(f.Relation.Target, f.Name)
	}
	names := sub
	if len(names) == 0 {
		names = related.FieldNames()
	}
	subAlias := b.alias(alias + "_" + f.Name)
	var parts []string
	parts = append(parts, "'{'")
	first := true
	for _, name := range names {
		rf := related.Field(name)
		if rf == nil || rf.Type == schema.TypeList {
			continue
		}
		if rf.Type == schema.TypeRelation && (rf.Relation.Kind == schema.ManyToMany || rf.Relation.Kind == schema.Reverse) {
			continue
		}
		sep := `',"` + name + `":"'`
		if first {
			sep = `'"` + name + `":"'`
			first = false
		}
		col := b.qualify(subAlias, name)
		expr := b.coalesce(b.jsonEscape(b.castText(col)))
		parts = append(parts, sep, expr, `'"'`)
	}
	parts = append(parts, "'}'")
	expr := b.concat(parts...)
	from := b.quote(cp.reg.Table(f.Relation.Target)) + " AS " + b.quote(subAlias)
	where := b.qualify(subAlias, related.PrimaryKey()) + " = " + b.qualify(alias, f.Name)
	return "(" + b.selectOne(expr, from, where) + ") AS " + b.quote(f.Name), nil
}

// compileJoin emits one join clause and merges the nested query's
// compiled clauses into p.
func (cp *compiler) compileJoin(entity string, j Join, alias string, b *builder, p *queryParams) error {
	if j.Query == nil {
		return NewInputError("join on %s.%s has no query", entity, j.Field)
	}
	local := cp.reg.Field(entity, j.Field)
	if local == nil {
		return NewRelationError(entity, j.Field)
	}
	joined := cp.reg.Entity(j.Query.Entity)
	if joined == nil {
		return NewRelationError(entity, j.Query.Entity)
	}
	jalias := b.alias(alias + "_" + j.Field)
	p.join += " " + j.Kind.keyword() + " " + b.quote(cp.reg.Table(j.Query.Entity)) +
		" AS " + b.quote(jalias) +
		" ON " + b.qualify(alias, j.Field) + " = " + b.qualify(jalias, joined.PrimaryKey())

	jp, err := cp.compileQuery(j.Query, jalias, b)
	if err != nil {
		return err
	}
	p.fields = append(p.fields, jp.fields...)
	switch {
	case p.where == "":
		p.where = jp.where
	case jp.where != "":
		p.where = "(" + p.where + " AND " + jp.where + ")"
	}
	if jp.orderBy != "" && !jp.defaultOrder && !p.defaultOrder {
		if p.orderBy != "" {
			p.orderBy += ", " + jp.orderBy
		} else {
			p.orderBy = jp.orderBy
		}
	}
	p.join += jp.join
	return nil
}

// selectStmt assembles the final SELECT from compiled clauses.
func (cp *compiler) selectStmt(q *Query, alias string, p *queryParams, b *builder) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(p.fields, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.quote(cp.reg.Table(q.Entity)))
	sb.WriteString(" AS ")
	sb.WriteString(b.quote(alias))
	sb.WriteString(p.join)
	if p.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(p.where)
	}
	if p.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(p.orderBy)
	}
	if p.pagination != "" {
		sb.WriteString(" ")
		sb.WriteString(p.pagination)
	}
	return sb.String()
}

// compileCount produces the COUNT(*) companion statement: same
// conditions and joins, no projection, order or pagination.
func (cp *compiler) compileCount(q *Query, alias string, b *builder) (string, error) {
	ent := cp.reg.Entity(q.Entity)
	if ent == nil {
		return "", NewInputError("unknown entity %q", q.Entity)
	}
	p := &queryParams{}
	p.where = cp.compileCondition(q.Entity, q.Where, alias, b)
	for _, j := range q.Joins {
		if err := cp.compileJoin(q.Entity, j, alias, b, p); err != nil {
			return "", err
		}
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) AS ")
	sb.WriteString(b.quote("total"))
	sb.WriteString(" FROM ")
	sb.WriteString(b.quote(cp.reg.Table(q.Entity)))
	sb.WriteString(" AS ")
	sb.WriteString(b.quote(alias))
	sb.WriteString(p.join)
	if p.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(p.where)
	}
	return sb.String(), nil
}
