package vesta

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

// fkColumn is the synthetic column secondary queries select the
// correlating key under. It is stripped before rows reach the caller.
const fkColumn = "_fk"

// attachRelations resolves the relation requests the main statement
// cannot embed: many-to-many and reverse relations, and list-valued
// fields. Each runs as one secondary query over the primary keys of the
// fetched page; rows are grouped by the correlating key and attached in
// place. Secondary queries run concurrently unless the client is bound
// to a transaction.
func (c *Client) attachRelations(ctx context.Context, q *Query, recs []Record) error {
	ent := c.reg.Entity(q.Entity)
	if ent == nil || len(recs) == 0 {
		return nil
	}
	type task struct {
		field string
		fetch func(context.Context, []any) (map[string][]any, error)
	}
	var tasks []task
	for _, r := range q.Relations {
		f := ent.Field(r.Name)
		if f == nil || f.Type != schema.TypeRelation {
			return NewRelationError(q.Entity, r.Name)
		}
		spec := r
		switch f.Relation.Kind {
		case schema.ManyToMany:
			tasks = append(tasks, task{f.Name, func(ctx context.Context, ids []any) (map[string][]any, error) {
				return c.fetchManyToMany(ctx, q.Entity, f, spec.Fields, ids)
			}})
		case schema.Reverse:
			tasks = append(tasks, task{f.Name, func(ctx context.Context, ids []any) (map[string][]any, error) {
				return c.fetchReverse(ctx, q.Entity, f, spec.Fields, ids)
			}})
		}
	}
	for i := range ent.Fields {
		f := &ent.Fields[i]
		if f.Type != schema.TypeList || !fieldRequested(q.Fields, f.Name) {
			continue
		}
		name := f.Name
		tasks = append(tasks, task{name, func(ctx context.Context, ids []any) (map[string][]any, error) {
			return c.fetchList(ctx, q.Entity, name, ids)
		}})
	}
	if len(tasks) == 0 {
		return nil
	}

	pk := ent.PrimaryKey()
	var ids []any
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		v, ok := rec[pk]
		if !ok || v == nil {
			continue
		}
		if k := keyOf(v); !seen[k] {
			seen[k] = true
			ids = append(ids, v)
		}
	}
	for _, rec := range recs {
		for _, t := range tasks {
			rec[t.field] = []any{}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	if c.tx != nil {
		g.SetLimit(1)
	}
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			grouped, err := t.fetch(ctx, ids)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				v, ok := rec[pk]
				if !ok || v == nil {
					continue
				}
				if vals, ok := grouped[keyOf(v)]; ok {
					rec[t.field] = vals
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// fieldRequested reports whether the projection includes name. An empty
// projection selects everything.
func fieldRequested(fields []string, name string) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// fetchManyToMany loads the related rows of a many-to-many relation
// through its junction table, grouped by owner key.
func (c *Client) fetchManyToMany(ctx context.Context, entity string, f *schema.Field, sub []string, ids []any) (map[string][]any, error) {
	related := c.reg.Entity(f.Relation.Target)
	if related == nil {
		return nil, NewRelationError(entity, f.Name)
	}
	b := newBuilder(c.cp.dialect)
	ownerCol, relatedCol := c.reg.JunctionColumns(entity, f.Name)
	talias := aliasOf(f.Relation.Target)

	cols := []string{b.qualify("j", ownerCol) + " AS " + b.quote(fkColumn)}
	for _, name := range scalarFields(related, sub) {
		cols = append(cols, b.qualify(talias, name))
	}
	stmt := "SELECT " + strings.Join(cols, ", ") +
		" FROM " + b.quote(c.reg.JunctionTable(entity, f.Name)) + " AS " + b.quote("j") +
		" JOIN " + b.quote(c.reg.Table(f.Relation.Target)) + " AS " + b.quote(talias) +
		" ON " + b.qualify("j", relatedCol) + " = " + b.qualify(talias, related.PrimaryKey()) +
		" WHERE " + b.qualify("j", ownerCol) + " IN (" + b.argList(ids) + ")"

	rows, err := c.queryRecords(ctx, stmt, b.args)
	if err != nil {
		return nil, NewQueryError(entity, err)
	}
	return groupByKey(rows, nil), nil
}

// fetchReverse loads the rows of the related entity pointing back at
// the owners through the inverse foreign-key field, grouped by owner
// key. The inverse column itself is stripped from the attached rows.
func (c *Client) fetchReverse(ctx context.Context, entity string, f *schema.Field, sub []string, ids []any) (map[string][]any, error) {
	related, inverse, err := c.reg.ReverseField(entity, f.Relation)
	if err != nil {
		return nil, NewRelationError(entity, f.Name)
	}
	b := newBuilder(c.cp.dialect)
	talias := aliasOf(related.Name)

	cols := []string{b.qualify(talias, inverse.Name) + " AS " + b.quote(fkColumn)}
	for _, name := range scalarFields(related, sub) {
		if name == inverse.Name {
			continue
		}
		cols = append(cols, b.qualify(talias, name))
	}
	stmt := "SELECT " + strings.Join(cols, ", ") +
		" FROM " + b.quote(c.reg.Table(related.Name)) + " AS " + b.quote(talias) +
		" WHERE " + b.qualify(talias, inverse.Name) + " IN (" + b.argList(ids) + ")"

	rows, err := c.queryRecords(ctx, stmt, b.args)
	if err != nil {
		return nil, NewQueryError(entity, err)
	}
	return groupByKey(rows, nil), nil
}

// fetchList loads the values of a list-valued field from its side
// table, grouped by owner key.
func (c *Client) fetchList(ctx context.Context, entity, field string, ids []any) (map[string][]any, error) {
	b := newBuilder(c.cp.dialect)
	fk, value := c.reg.ListColumns(entity)
	stmt := "SELECT " + b.quote(fk) + " AS " + b.quote(fkColumn) + ", " + b.quote(value) +
		" FROM " + b.quote(c.reg.ListTable(entity, field)) +
		" WHERE " + b.quote(fk) + " IN (" + b.argList(ids) + ")"

	rows, err := c.queryRecords(ctx, stmt, b.args)
	if err != nil {
		return nil, NewQueryError(entity, err)
	}
	return groupByKey(rows, func(rec Record) any { return rec[value] }), nil
}

// scalarFields returns the projectable column names of ent, narrowed to
// sub when given. List fields and relations without a local column are
// excluded.
func scalarFields(ent *schema.Entity, sub []string) []string {
	var names []string
	for i := range ent.Fields {
		f := &ent.Fields[i]
		if len(sub) > 0 && !fieldRequested(sub, f.Name) {
			continue
		}
		if f.Type == schema.TypeList {
			continue
		}
		if f.Type == schema.TypeRelation && (f.Relation.Kind == schema.ManyToMany || f.Relation.Kind == schema.Reverse) {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// groupByKey buckets rows by their correlating key, stripping the key
// column. When extract is given the bucketed value is the extracted
// scalar instead of the row itself.
func groupByKey(rows []Record, extract func(Record) any) map[string][]any {
	grouped := make(map[string][]any)
	for _, row := range rows {
		k := keyOf(row[fkColumn])
		delete(row, fkColumn)
		if extract != nil {
			grouped[k] = append(grouped[k], extract(row))
		} else {
			grouped[k] = append(grouped[k], row)
		}
	}
	return grouped
}
