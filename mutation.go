package vesta

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
	sqlgw "github.com/VestaRayanAfzar/vesta-driver-mssql/dialect/sql"
	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

var errNoGeneratedKey = errors.New("no generated key returned")

// begin returns the transaction mutations run in. A client bound to a
// transaction reuses it and does not own it; otherwise a new one is
// opened and owned by the caller.
func (c *Client) begin(ctx context.Context) (dialect.Tx, bool, error) {
	if c.tx != nil {
		return c.tx, false, nil
	}
	tx, err := c.drv.Tx(ctx)
	return tx, err == nil, err
}

// finish settles an owned transaction: rollback on error, commit
// otherwise. Borrowed transactions are left untouched.
func finish(tx dialect.Tx, owned bool, err error) error {
	if !owned {
		return err
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// wrapMutation wraps a driver failure in a MutationError; errors from
// the adapter's own taxonomy pass through unchanged.
func wrapMutation(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsInputError(err) || IsRelationError(err) || IsNotFound(err) || IsMutationError(err) {
		return err
	}
	return NewMutationError(entity, op, err)
}

// Insert creates one entity row together with its relation side effects:
// junction rows for many-to-many values, side-table rows for list
// values, translation rows for multilingual values and nested inserts
// for weak relation objects. The stored row is re-read by primary key
// before the transaction commits so database-side defaults appear in
// the returned record.
func (c *Client) Insert(ctx context.Context, entity string, values Record) (Record, error) {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return nil, wrapMutation(entity, "insert", err)
	}
	rec, err := c.insertOne(ctx, tx, ent, values)
	if err == nil {
		rec, err = c.refetch(ctx, tx, ent, rec[ent.PrimaryKey()], rec)
	}
	if err = finish(tx, owned, err); err != nil {
		return nil, wrapMutation(entity, "insert", err)
	}
	c.invalidate(ctx, entity, values)
	return rec, nil
}

// InsertAll creates the given rows in one multi-row INSERT. Only plain
// and foreign-key columns are accepted; relation sets, list values,
// translations and nested records are per-row work for Insert. A row
// missing a column another row carries inserts NULL there. Generated
// integer keys are not reported back; string keys are generated
// client-side and returned. An empty input short-circuits without
// touching the database.
func (c *Client) InsertAll(ctx context.Context, entity string, values []Record) ([]Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	pk := ent.PrimaryKey()
	recs := make([]Record, len(values))
	for i, row := range values {
		rec := make(Record, len(row)+1)
		for k, v := range row {
			rec[k] = v
		}
		if _, ok := rec[pk]; !ok {
			if pf := ent.Field(pk); pf != nil && pf.Type == schema.TypeString {
				rec[pk] = uuid.NewString()
			}
		}
		recs[i] = rec
	}
	var cols []string
	for i := range ent.Fields {
		f := &ent.Fields[i]
		include := false
		for _, rec := range recs {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			if f.Type == schema.TypeList {
				return nil, NewInputError("%s.%s cannot be bulk-inserted", entity, f.Name)
			}
			if f.Type == schema.TypeRelation && (f.Relation.Kind == schema.ManyToMany || f.Relation.Kind == schema.Reverse) {
				return nil, NewInputError("%s.%s cannot be bulk-inserted", entity, f.Name)
			}
			if _, isMap := v.(map[string]any); isMap {
				return nil, NewInputError("%s.%s cannot be bulk-inserted", entity, f.Name)
			}
			include = true
		}
		if include {
			cols = append(cols, f.Name)
		}
	}
	if len(cols) == 0 {
		return nil, NewInputError("bulk insert into %s has no values", entity)
	}
	b := newBuilder(c.cp.dialect)
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = b.quote(col)
	}
	rows := make([]string, len(recs))
	for i, rec := range recs {
		ph := make([]string, len(cols))
		for j, col := range cols {
			ph[j] = b.arg(rec[col])
		}
		rows[i] = "(" + strings.Join(ph, ", ") + ")"
	}
	stmt := "INSERT INTO " + b.quote(c.reg.Table(entity)) +
		" (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(rows, ", ")
	if _, err := c.exec(ctx, c.conn(), stmt, b.args); err != nil {
		return nil, wrapMutation(entity, "insert", err)
	}
	for _, v := range values {
		c.invalidate(ctx, entity, v)
	}
	return recs, nil
}

// insertOne plans and executes one row insert inside tx: the owner row
// first, then junction, list, translation and nested reverse rows keyed
// by the owner's primary key.
func (c *Client) insertOne(ctx context.Context, tx dialect.Tx, ent *schema.Entity, values Record) (Record, error) {
	pk := ent.PrimaryKey()
	var (
		cols []string
		vals []any
		m2m  = map[string][]any{}
		list = map[string][]any{}
		tr   = map[string]map[string]any{}
		kids = map[string][]Record{}
	)
	pkProvided := false
	for i := range ent.Fields {
		f := &ent.Fields[i]
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		switch f.Type {
		case schema.TypeList:
			list[f.Name] = toSlice(v)
		case schema.TypeRelation:
			switch f.Relation.Kind {
			case schema.ManyToMany:
				ids, err := c.relatedIDs(ctx, tx, f, v)
				if err != nil {
					return nil, err
				}
				m2m[f.Name] = ids
			case schema.Reverse:
				for _, el := range toSlice(v) {
					child, ok := el.(map[string]any)
					if !ok {
						return nil, NewInputError("%s.%s: reverse relation values must be records", ent.Name, f.Name)
					}
					kids[f.Name] = append(kids[f.Name], child)
				}
			default:
				id, err := c.relatedID(ctx, tx, f, v)
				if err != nil {
					return nil, err
				}
				cols, vals = append(cols, f.Name), append(vals, id)
			}
		default:
			if f.Multilingual {
				if m, ok := v.(map[string]any); ok {
					tr[f.Name] = m
					continue
				}
			}
			if f.Name == pk {
				pkProvided = true
			}
			cols, vals = append(cols, f.Name), append(vals, v)
		}
	}
	var pkVal any
	if pkProvided {
		pkVal = values[pk]
	} else if v, ok := values[pk]; ok {
		// Explicit key on an undeclared primary-key field.
		cols, vals = append(cols, pk), append(vals, v)
		pkProvided, pkVal = true, v
	} else if pf := ent.Field(pk); pf != nil && pf.Type == schema.TypeString {
		pkVal = uuid.NewString()
		cols, vals = append(cols, pk), append(vals, pkVal)
		pkProvided = true
	}

	id, err := c.insertRow(ctx, tx, ent, cols, vals, pkProvided, pkVal)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1) // statements share the transaction
	for i := range ent.Fields {
		field := ent.Fields[i].Name
		if ids, ok := m2m[field]; ok {
			g.Go(func() error { return c.insertJunction(gctx, tx, ent.Name, field, id, ids) })
		}
		if vs, ok := list[field]; ok {
			g.Go(func() error { return c.insertListRows(gctx, tx, ent.Name, field, id, vs) })
		}
		if children, ok := kids[field]; ok {
			g.Go(func() error { return c.insertChildren(gctx, tx, ent.Name, ent.Field(field), id, children) })
		}
	}
	if len(tr) > 0 {
		g.Go(func() error { return c.insertTranslations(gctx, tx, ent.Name, id, tr) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := make(Record, len(values)+1)
	for k, v := range values {
		rec[k] = v
	}
	rec[pk] = id
	return rec, nil
}

// insertRow renders and executes the owner INSERT and returns the row's
// primary key. Key retrieval is dialect-specific when the key is
// database-generated.
func (c *Client) insertRow(ctx context.Context, tx dialect.Tx, ent *schema.Entity, cols []string, vals []any, pkProvided bool, pkVal any) (any, error) {
	pk := ent.PrimaryKey()
	b := newBuilder(c.cp.dialect)
	stmt := "INSERT INTO " + b.quote(c.reg.Table(ent.Name))
	if len(cols) == 0 {
		// Every column takes its declared default. MySQL has no
		// DEFAULT VALUES form.
		if c.cp.dialect == dialect.MySQL {
			stmt += " () VALUES ()"
		} else {
			stmt += " DEFAULT VALUES"
		}
	} else {
		quoted := make([]string, len(cols))
		ph := make([]string, len(cols))
		for i := range cols {
			quoted[i] = b.quote(cols[i])
			ph[i] = b.arg(vals[i])
		}
		stmt += " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")"
	}
	if pkProvided {
		_, err := c.exec(ctx, tx, stmt, b.args)
		return pkVal, err
	}
	switch c.cp.dialect {
	case dialect.MSSQL:
		stmt += "; SELECT SCOPE_IDENTITY() AS " + b.quote(pk)
		return c.generatedKey(ctx, tx, stmt, b.args, pk, ent.Name)
	case dialect.Postgres:
		stmt += " RETURNING " + b.quote(pk)
		return c.generatedKey(ctx, tx, stmt, b.args, pk, ent.Name)
	default:
		var res sqlgw.Result
		if err := tx.Exec(ctx, stmt, b.args, &res); err != nil {
			return nil, err
		}
		return res.LastInsertId()
	}
}

// generatedKey runs an INSERT that yields the generated key as a result
// set and scans it out.
func (c *Client) generatedKey(ctx context.Context, tx dialect.Tx, stmt string, args []any, pk, entity string) (any, error) {
	recs, err := queryConn(ctx, tx, stmt, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewMutationError(entity, "insert", errNoGeneratedKey)
	}
	return recs[0][pk], nil
}

// insertJunction links owner to every related id through the junction
// table in one multi-row INSERT.
func (c *Client) insertJunction(ctx context.Context, conn dialect.ExecQuerier, entity, field string, owner any, related []any) error {
	if len(related) == 0 {
		return nil
	}
	b := newBuilder(c.cp.dialect)
	ownerCol, relatedCol := c.reg.JunctionColumns(entity, field)
	rows := make([]string, len(related))
	for i, id := range related {
		rows[i] = "(" + b.arg(owner) + ", " + b.arg(id) + ")"
	}
	stmt := "INSERT INTO " + b.quote(c.reg.JunctionTable(entity, field)) +
		" (" + b.quote(ownerCol) + ", " + b.quote(relatedCol) + ") VALUES " + strings.Join(rows, ", ")
	_, err := c.exec(ctx, conn, stmt, b.args)
	return err
}

// insertListRows stores the values of a list field in its side table.
func (c *Client) insertListRows(ctx context.Context, conn dialect.ExecQuerier, entity, field string, owner any, values []any) error {
	if len(values) == 0 {
		return nil
	}
	b := newBuilder(c.cp.dialect)
	fk, value := c.reg.ListColumns(entity)
	rows := make([]string, len(values))
	for i, v := range values {
		rows[i] = "(" + b.arg(owner) + ", " + b.arg(v) + ")"
	}
	stmt := "INSERT INTO " + b.quote(c.reg.ListTable(entity, field)) +
		" (" + b.quote(fk) + ", " + b.quote(value) + ") VALUES " + strings.Join(rows, ", ")
	_, err := c.exec(ctx, conn, stmt, b.args)
	return err
}

// insertTranslations stores per-locale values of multilingual fields,
// one row per (field, locale). Locales are checked against the
// registry's configured languages when any are declared.
func (c *Client) insertTranslations(ctx context.Context, conn dialect.ExecQuerier, entity string, owner any, tr map[string]map[string]any) error {
	b := newBuilder(c.cp.dialect)
	var rows []string
	for field, locales := range tr {
		for locale, v := range locales {
			if err := c.checkLocale(locale); err != nil {
				return err
			}
			rows = append(rows, "("+b.arg(owner)+", "+b.arg(locale)+", "+b.arg(field)+", "+b.arg(v)+")")
		}
	}
	if len(rows) == 0 {
		return nil
	}
	fk, _ := c.reg.ListColumns(entity)
	stmt := "INSERT INTO " + b.quote(c.reg.TranslationTable(entity)) +
		" (" + b.quote(fk) + ", " + b.quote("locale") + ", " + b.quote("field") + ", " + b.quote("value") +
		") VALUES " + strings.Join(rows, ", ")
	_, err := c.exec(ctx, conn, stmt, b.args)
	return err
}

// checkLocale validates a translation locale against the configured
// languages. An empty configuration accepts any locale.
func (c *Client) checkLocale(locale string) error {
	langs := c.reg.Languages()
	if len(langs) == 0 {
		return nil
	}
	for _, tag := range langs {
		if tag.String() == locale {
			return nil
		}
	}
	return NewInputError("locale %q is not configured", locale)
}

// insertChildren inserts the nested records of a reverse relation with
// their inverse foreign key pointed at owner.
func (c *Client) insertChildren(ctx context.Context, tx dialect.Tx, entity string, f *schema.Field, owner any, children []Record) error {
	related, inverse, err := c.reg.ReverseField(entity, f.Relation)
	if err != nil {
		return NewRelationError(entity, f.Name)
	}
	for _, child := range children {
		cc := make(Record, len(child)+1)
		for k, v := range child {
			cc[k] = v
		}
		cc[inverse.Name] = owner
		if _, err := c.insertOne(ctx, tx, related, cc); err != nil {
			return err
		}
	}
	return nil
}

// relatedID resolves a one-to-one/one-to-many relation value to the
// related row's key: scalars pass through, records yield their primary
// key, and keyless records of weak relations are inserted first.
func (c *Client) relatedID(ctx context.Context, tx dialect.Tx, f *schema.Field, v any) (any, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	target := c.reg.Entity(f.Relation.Target)
	if target == nil {
		return nil, NewRelationError(f.Relation.Target, f.Name)
	}
	tpk := target.PrimaryKey()
	if id, ok := rec[tpk]; ok && id != nil {
		return id, nil
	}
	if !f.Relation.Weak {
		return nil, NewInputError("%s value is missing its primary key", f.Name)
	}
	created, err := c.insertOne(ctx, tx, target, rec)
	if err != nil {
		return nil, err
	}
	return created[tpk], nil
}

// relatedIDs resolves a many-to-many relation value to the keys of the
// related rows.
func (c *Client) relatedIDs(ctx context.Context, tx dialect.Tx, f *schema.Field, v any) ([]any, error) {
	els := toSlice(v)
	ids := make([]any, 0, len(els))
	for _, el := range els {
		id, err := c.relatedID(ctx, tx, f, el)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Update modifies one row identified by the primary key carried in
// values. Many-to-many, list and translation values replace the stored
// set; relation objects carrying their key update the related row too.
// The row is re-read by primary key before the transaction commits so
// database-side defaults appear in the returned record.
func (c *Client) Update(ctx context.Context, entity string, values Record) (Record, error) {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	pk := ent.PrimaryKey()
	id, ok := values[pk]
	if !ok || id == nil {
		return nil, NewInputError("update of %s requires the primary key", entity)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return nil, wrapMutation(entity, "update", err)
	}
	err = c.updateOne(ctx, tx, ent, id, values)
	var rec Record
	if err == nil {
		rec, err = c.refetch(ctx, tx, ent, id, values)
	}
	if err = finish(tx, owned, err); err != nil {
		return nil, wrapMutation(entity, "update", err)
	}
	c.invalidate(ctx, entity, values)
	return rec, nil
}

// refetch re-reads one row by key inside the transaction of a write so
// values filled in by the database surface in the result. Written
// values the row itself cannot carry (relation sets, list values,
// translations) are kept; a NULL column never displaces them.
func (c *Client) refetch(ctx context.Context, tx dialect.ExecQuerier, ent *schema.Entity, id any, written Record) (Record, error) {
	rows, err := c.rowsByKeys(ctx, tx, ent, []any{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewNotFoundError(ent.Name, id)
	}
	rec := make(Record, len(written)+len(rows[0]))
	for k, v := range written {
		rec[k] = v
	}
	for k, v := range rows[0] {
		if v == nil {
			if cur, ok := rec[k]; ok && cur != nil {
				continue
			}
		}
		rec[k] = v
	}
	return rec, nil
}

func (c *Client) updateOne(ctx context.Context, tx dialect.Tx, ent *schema.Entity, id any, values Record) error {
	pk := ent.PrimaryKey()
	// The affected count cannot tell a missing row from an update that
	// changed nothing (MySQL reports rows changed, not rows matched),
	// so existence is checked by key before anything is written.
	eb := newBuilder(c.cp.dialect)
	estmt := "SELECT " + eb.quote(pk) + " FROM " + eb.quote(c.reg.Table(ent.Name)) +
		" WHERE " + eb.quote(pk) + " = " + eb.arg(id)
	existing, err := queryConn(ctx, tx, estmt, eb.args)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return NewNotFoundError(ent.Name, id)
	}
	b := newBuilder(c.cp.dialect)
	var (
		sets []string
		m2m  = map[string][]any{}
		list = map[string][]any{}
		tr   = map[string]map[string]any{}
	)
	for i := range ent.Fields {
		f := &ent.Fields[i]
		v, ok := values[f.Name]
		if !ok || f.Name == pk {
			continue
		}
		switch f.Type {
		case schema.TypeList:
			list[f.Name] = toSlice(v)
		case schema.TypeRelation:
			switch f.Relation.Kind {
			case schema.ManyToMany:
				ids, err := c.relatedIDs(ctx, tx, f, v)
				if err != nil {
					return err
				}
				m2m[f.Name] = ids
			case schema.Reverse:
				// Inverse sides are managed through Relate/Unrelate.
			default:
				fk, err := c.updateRelated(ctx, tx, f, v)
				if err != nil {
					return err
				}
				sets = append(sets, b.quote(f.Name)+" = "+b.arg(fk))
			}
		default:
			if f.Multilingual {
				if m, ok := v.(map[string]any); ok {
					tr[f.Name] = m
					continue
				}
			}
			sets = append(sets, b.quote(f.Name)+" = "+b.arg(v))
		}
	}
	if len(sets) > 0 {
		stmt := "UPDATE " + b.quote(c.reg.Table(ent.Name)) + " SET " + strings.Join(sets, ", ") +
			" WHERE " + b.quote(pk) + " = " + b.arg(id)
		if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
			return err
		}
	}
	// Side tables in schema field order so the statement sequence is
	// stable.
	for i := range ent.Fields {
		name := ent.Fields[i].Name
		if ids, ok := m2m[name]; ok {
			if err := c.replaceJunction(ctx, tx, ent.Name, name, id, ids); err != nil {
				return err
			}
		}
		if vs, ok := list[name]; ok {
			if err := c.replaceListRows(ctx, tx, ent.Name, name, id, vs); err != nil {
				return err
			}
		}
	}
	if len(tr) > 0 {
		if err := c.replaceTranslations(ctx, tx, ent.Name, id, tr); err != nil {
			return err
		}
	}
	return nil
}

// updateRelated resolves a relation value during update. A record that
// carries its key is written through before its key is used as the
// foreign-key value.
func (c *Client) updateRelated(ctx context.Context, tx dialect.Tx, f *schema.Field, v any) (any, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	target := c.reg.Entity(f.Relation.Target)
	if target == nil {
		return nil, NewRelationError(f.Relation.Target, f.Name)
	}
	tpk := target.PrimaryKey()
	id, ok := rec[tpk]
	if !ok || id == nil {
		return c.relatedID(ctx, tx, f, v)
	}
	if len(rec) > 1 {
		if err := c.updateOne(ctx, tx, target, id, rec); err != nil {
			return nil, err
		}
	}
	return id, nil
}

func (c *Client) replaceJunction(ctx context.Context, tx dialect.Tx, entity, field string, owner any, ids []any) error {
	b := newBuilder(c.cp.dialect)
	ownerCol, _ := c.reg.JunctionColumns(entity, field)
	stmt := "DELETE FROM " + b.quote(c.reg.JunctionTable(entity, field)) +
		" WHERE " + b.quote(ownerCol) + " = " + b.arg(owner)
	if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
		return err
	}
	return c.insertJunction(ctx, tx, entity, field, owner, ids)
}

func (c *Client) replaceListRows(ctx context.Context, tx dialect.Tx, entity, field string, owner any, values []any) error {
	b := newBuilder(c.cp.dialect)
	fk, _ := c.reg.ListColumns(entity)
	stmt := "DELETE FROM " + b.quote(c.reg.ListTable(entity, field)) +
		" WHERE " + b.quote(fk) + " = " + b.arg(owner)
	if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
		return err
	}
	return c.insertListRows(ctx, tx, entity, field, owner, values)
}

func (c *Client) replaceTranslations(ctx context.Context, tx dialect.Tx, entity string, owner any, tr map[string]map[string]any) error {
	b := newBuilder(c.cp.dialect)
	fk, _ := c.reg.ListColumns(entity)
	fields := make([]any, 0, len(tr))
	for field := range tr {
		fields = append(fields, field)
	}
	stmt := "DELETE FROM " + b.quote(c.reg.TranslationTable(entity)) +
		" WHERE " + b.quote(fk) + " = " + b.arg(owner) +
		" AND " + b.quote("field") + " IN (" + b.argList(fields) + ")"
	if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
		return err
	}
	return c.insertTranslations(ctx, tx, entity, owner, tr)
}

// UpdateAll applies the scalar values to every row matching cond. The
// matching primary keys are read first and the update targets exactly
// that key set; an empty match issues nothing. The changed rows are
// re-read and returned. Relation set replacement, list and multilingual
// values are rejected; those are per-row operations.
func (c *Client) UpdateAll(ctx context.Context, entity string, cond *Condition, values Record) ([]Record, error) {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	pk := ent.PrimaryKey()
	var cols []string
	var vals []any
	for i := range ent.Fields {
		f := &ent.Fields[i]
		v, ok := values[f.Name]
		if !ok || f.Name == pk {
			continue
		}
		switch {
		case f.Type == schema.TypeList, f.Multilingual:
			return nil, NewInputError("%s.%s cannot be bulk-updated", entity, f.Name)
		case f.Type == schema.TypeRelation:
			if f.Relation.Kind == schema.ManyToMany || f.Relation.Kind == schema.Reverse {
				return nil, NewInputError("%s.%s cannot be bulk-updated", entity, f.Name)
			}
			fallthrough
		default:
			cols = append(cols, f.Name)
			vals = append(vals, v)
		}
	}
	if len(cols) == 0 {
		return nil, NewInputError("bulk update of %s has no values", entity)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return nil, wrapMutation(entity, "update", err)
	}
	records, err := c.updateAll(ctx, tx, ent, cond, cols, vals)
	if err = finish(tx, owned, err); err != nil {
		return nil, wrapMutation(entity, "update", err)
	}
	c.invalidate(ctx, entity, nil)
	return records, nil
}

func (c *Client) updateAll(ctx context.Context, tx dialect.Tx, ent *schema.Entity, cond *Condition, cols []string, vals []any) ([]Record, error) {
	ids, err := c.matchingKeys(ctx, tx, ent, cond)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	b := newBuilder(c.cp.dialect)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = b.quote(col) + " = " + b.arg(vals[i])
	}
	stmt := "UPDATE " + b.quote(c.reg.Table(ent.Name)) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + b.quote(ent.PrimaryKey()) + " IN (" + b.argList(ids) + ")"
	if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
		return nil, err
	}
	return c.rowsByKeys(ctx, tx, ent, ids)
}

// matchingKeys reads the primary keys of the rows cond matches.
func (c *Client) matchingKeys(ctx context.Context, tx dialect.ExecQuerier, ent *schema.Entity, cond *Condition) ([]any, error) {
	alias := aliasOf(ent.Name)
	pk := ent.PrimaryKey()
	b := newBuilder(c.cp.dialect)
	stmt := "SELECT " + b.qualify(alias, pk) +
		" FROM " + b.quote(c.reg.Table(ent.Name)) + " AS " + b.quote(alias)
	if where := c.cp.compileCondition(ent.Name, cond, alias, b); where != "" {
		stmt += " WHERE " + where
	}
	rows, err := queryConn(ctx, tx, stmt, b.args)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r[pk])
	}
	return ids, nil
}

func (c *Client) rowsByKeys(ctx context.Context, tx dialect.ExecQuerier, ent *schema.Entity, ids []any) ([]Record, error) {
	b := newBuilder(c.cp.dialect)
	names := scalarFields(ent, nil)
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = b.quote(name)
	}
	stmt := "SELECT " + strings.Join(cols, ", ") + " FROM " + b.quote(c.reg.Table(ent.Name)) +
		" WHERE " + b.quote(ent.PrimaryKey()) + " IN (" + b.argList(ids) + ")"
	return queryConn(ctx, tx, stmt, b.args)
}

// Delete removes one row by primary key together with its dependents:
// junction rows, list rows, translation rows, weakly related rows, and
// the inverse keys of strong reverse relations are cleared. All of it
// runs, and completes, inside one transaction.
func (c *Client) Delete(ctx context.Context, entity string, id any) error {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return NewInputError("unknown entity %q", entity)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return wrapMutation(entity, "delete", err)
	}
	err = c.deleteOne(ctx, tx, ent, id)
	if err = finish(tx, owned, err); err != nil {
		return wrapMutation(entity, "delete", err)
	}
	c.invalidate(ctx, entity, nil)
	return nil
}

func (c *Client) deleteOne(ctx context.Context, tx dialect.Tx, ent *schema.Entity, id any) error {
	pk := ent.PrimaryKey()
	type cascade struct {
		target *schema.Entity
		id     any
	}
	var cascades []cascade
	hasTranslations := false
	for i := range ent.Fields {
		f := &ent.Fields[i]
		if f.Multilingual {
			hasTranslations = true
		}
		switch {
		case f.Type == schema.TypeList:
			b := newBuilder(c.cp.dialect)
			fk, _ := c.reg.ListColumns(ent.Name)
			stmt := "DELETE FROM " + b.quote(c.reg.ListTable(ent.Name, f.Name)) +
				" WHERE " + b.quote(fk) + " = " + b.arg(id)
			if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
				return err
			}
		case f.Type != schema.TypeRelation:
			continue
		case f.Relation.Kind == schema.ManyToMany:
			b := newBuilder(c.cp.dialect)
			ownerCol, _ := c.reg.JunctionColumns(ent.Name, f.Name)
			stmt := "DELETE FROM " + b.quote(c.reg.JunctionTable(ent.Name, f.Name)) +
				" WHERE " + b.quote(ownerCol) + " = " + b.arg(id)
			if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
				return err
			}
		case f.Relation.Kind == schema.Reverse:
			related, inverse, err := c.reg.ReverseField(ent.Name, f.Relation)
			if err != nil {
				return NewRelationError(ent.Name, f.Name)
			}
			if f.Relation.Weak {
				// A bulk delete would orphan the children's own junction,
				// list and translation rows; route each child through the
				// full per-row cleanup instead.
				b := newBuilder(c.cp.dialect)
				rpk := related.PrimaryKey()
				stmt := "SELECT " + b.quote(rpk) + " FROM " + b.quote(c.reg.Table(related.Name)) +
					" WHERE " + b.quote(inverse.Name) + " = " + b.arg(id)
				rows, err := queryConn(ctx, tx, stmt, b.args)
				if err != nil {
					return err
				}
				for _, r := range rows {
					cascades = append(cascades, cascade{related, r[rpk]})
				}
				continue
			}
			b := newBuilder(c.cp.dialect)
			stmt := "UPDATE " + b.quote(c.reg.Table(related.Name)) +
				" SET " + b.quote(inverse.Name) + " = NULL" +
				" WHERE " + b.quote(inverse.Name) + " = " + b.arg(id)
			if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
				return err
			}
		case f.Relation.Weak:
			// Owned one-to-one/one-to-many: remember the related key and
			// delete the row after the owner releases it.
			b := newBuilder(c.cp.dialect)
			stmt := "SELECT " + b.quote(f.Name) + " FROM " + b.quote(c.reg.Table(ent.Name)) +
				" WHERE " + b.quote(pk) + " = " + b.arg(id)
			rows, err := queryConn(ctx, tx, stmt, b.args)
			if err != nil {
				return err
			}
			target := c.reg.Entity(f.Relation.Target)
			if target == nil {
				return NewRelationError(ent.Name, f.Name)
			}
			if len(rows) > 0 && rows[0][f.Name] != nil {
				cascades = append(cascades, cascade{target, rows[0][f.Name]})
			}
		}
	}
	if hasTranslations {
		b := newBuilder(c.cp.dialect)
		fk, _ := c.reg.ListColumns(ent.Name)
		stmt := "DELETE FROM " + b.quote(c.reg.TranslationTable(ent.Name)) +
			" WHERE " + b.quote(fk) + " = " + b.arg(id)
		if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
			return err
		}
	}
	b := newBuilder(c.cp.dialect)
	stmt := "DELETE FROM " + b.quote(c.reg.Table(ent.Name)) +
		" WHERE " + b.quote(pk) + " = " + b.arg(id)
	affected, err := c.exec(ctx, tx, stmt, b.args)
	if err != nil {
		return err
	}
	if affected == 0 {
		return NewNotFoundError(ent.Name, id)
	}
	for _, cs := range cascades {
		if err := c.deleteOne(ctx, tx, cs.target, cs.id); err != nil && !IsNotFound(err) {
			return err
		}
	}
	return nil
}

// DeleteAll removes every row matching cond with the same dependent
// cleanup as Delete and returns the removed primary keys. The keys are
// read first and each row is then deleted by key; an empty match issues
// nothing further.
func (c *Client) DeleteAll(ctx context.Context, entity string, cond *Condition) ([]any, error) {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return nil, wrapMutation(entity, "delete", err)
	}
	ids, err := c.matchingKeys(ctx, tx, ent, cond)
	for _, id := range ids {
		if err != nil {
			break
		}
		if derr := c.deleteOne(ctx, tx, ent, id); derr != nil && !IsNotFound(derr) {
			err = derr
		}
	}
	if err = finish(tx, owned, err); err != nil {
		return nil, wrapMutation(entity, "delete", err)
	}
	c.invalidate(ctx, entity, nil)
	return ids, nil
}

// Increase atomically adds amount to a numeric field of one row and
// returns the row re-read after the increment.
func (c *Client) Increase(ctx context.Context, entity string, id any, field string, amount any) (Record, error) {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return nil, NewInputError("unknown entity %q", entity)
	}
	f := ent.Field(field)
	if f == nil || (f.Type != schema.TypeInteger && f.Type != schema.TypeFloat) {
		return nil, NewInputError("%s.%s is not a numeric field", entity, field)
	}
	b := newBuilder(c.cp.dialect)
	col := b.quote(field)
	stmt := "UPDATE " + b.quote(c.reg.Table(entity)) +
		" SET " + col + " = " + col + " + " + b.arg(amount) +
		" WHERE " + b.quote(ent.PrimaryKey()) + " = " + b.arg(id)
	// Existence is decided by the re-read, not the affected count; an
	// increment by zero still matches the row.
	if _, err := c.exec(ctx, c.conn(), stmt, b.args); err != nil {
		return nil, wrapMutation(entity, "increase", err)
	}
	c.invalidate(ctx, entity, nil)
	rows, err := c.rowsByKeys(ctx, c.conn(), ent, []any{id})
	if err != nil {
		return nil, wrapMutation(entity, "increase", err)
	}
	if len(rows) == 0 {
		return nil, NewNotFoundError(entity, id)
	}
	return rows[0], nil
}

// Relate links related rows to one owner row: junction rows for a
// many-to-many field, inverse foreign keys for a reverse field, the
// local foreign-key column for a one-to-one/one-to-many field.
func (c *Client) Relate(ctx context.Context, entity string, id any, field string, related ...any) error {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return NewInputError("unknown entity %q", entity)
	}
	f := ent.Field(field)
	if f == nil || f.Type != schema.TypeRelation {
		return NewRelationError(entity, field)
	}
	var err error
	switch f.Relation.Kind {
	case schema.ManyToMany:
		err = c.insertJunction(ctx, c.conn(), entity, field, id, related)
	case schema.Reverse:
		if len(related) == 0 {
			return nil
		}
		relatedEnt, inverse, rerr := c.reg.ReverseField(entity, f.Relation)
		if rerr != nil {
			return NewRelationError(entity, field)
		}
		b := newBuilder(c.cp.dialect)
		stmt := "UPDATE " + b.quote(c.reg.Table(relatedEnt.Name)) +
			" SET " + b.quote(inverse.Name) + " = " + b.arg(id) +
			" WHERE " + b.quote(relatedEnt.PrimaryKey()) + " IN (" + b.argList(related) + ")"
		_, err = c.exec(ctx, c.conn(), stmt, b.args)
	default:
		if len(related) != 1 {
			return NewInputError("%s.%s relates to exactly one row", entity, field)
		}
		b := newBuilder(c.cp.dialect)
		stmt := "UPDATE " + b.quote(c.reg.Table(entity)) +
			" SET " + b.quote(field) + " = " + b.arg(related[0]) +
			" WHERE " + b.quote(ent.PrimaryKey()) + " = " + b.arg(id)
		_, err = c.exec(ctx, c.conn(), stmt, b.args)
	}
	if err != nil {
		return wrapMutation(entity, "update", err)
	}
	c.invalidate(ctx, entity, nil)
	c.invalidate(ctx, f.Relation.Target, nil)
	return nil
}

// Unrelate unlinks the given related rows from one owner row. An empty
// related set unlinks nothing; use UnrelateAll to clear the relation.
func (c *Client) Unrelate(ctx context.Context, entity string, id any, field string, related ...any) error {
	return c.unrelate(ctx, entity, id, field, related, false)
}

// UnrelateAll unlinks every related row of the field from the owner.
func (c *Client) UnrelateAll(ctx context.Context, entity string, id any, field string) error {
	return c.unrelate(ctx, entity, id, field, nil, true)
}

func (c *Client) unrelate(ctx context.Context, entity string, id any, field string, related []any, all bool) error {
	ent := c.reg.Entity(entity)
	if ent == nil {
		return NewInputError("unknown entity %q", entity)
	}
	f := ent.Field(field)
	if f == nil || f.Type != schema.TypeRelation {
		return NewRelationError(entity, field)
	}
	tx, owned, err := c.begin(ctx)
	if err != nil {
		return wrapMutation(entity, "update", err)
	}
	err = c.unrelateIn(ctx, tx, ent, f, id, related, all)
	if err = finish(tx, owned, err); err != nil {
		return wrapMutation(entity, "update", err)
	}
	c.invalidate(ctx, entity, nil)
	c.invalidate(ctx, f.Relation.Target, nil)
	return nil
}

// unrelateIn unlinks inside tx. Rows owned through a weak relation are
// orphaned by the unlink and are deleted with full dependent cleanup.
func (c *Client) unrelateIn(ctx context.Context, tx dialect.Tx, ent *schema.Entity, f *schema.Field, id any, related []any, all bool) error {
	entity := ent.Name
	target := c.reg.Entity(f.Relation.Target)
	if target == nil {
		return NewRelationError(entity, f.Name)
	}
	switch f.Relation.Kind {
	case schema.ManyToMany:
		ownerCol, relatedCol := c.reg.JunctionColumns(entity, f.Name)
		orphans := related
		if all && f.Relation.Weak {
			b := newBuilder(c.cp.dialect)
			stmt := "SELECT " + b.quote(relatedCol) +
				" FROM " + b.quote(c.reg.JunctionTable(entity, f.Name)) +
				" WHERE " + b.quote(ownerCol) + " = " + b.arg(id)
			rows, err := queryConn(ctx, tx, stmt, b.args)
			if err != nil {
				return err
			}
			orphans = nil
			for _, r := range rows {
				orphans = append(orphans, r[relatedCol])
			}
		}
		b := newBuilder(c.cp.dialect)
		stmt := "DELETE FROM " + b.quote(c.reg.JunctionTable(entity, f.Name)) +
			" WHERE " + b.quote(ownerCol) + " = " + b.arg(id)
		stmt += c.narrowBy(b, relatedCol, related, all)
		if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
			return err
		}
		if f.Relation.Weak {
			for _, oid := range orphans {
				if err := c.deleteOne(ctx, tx, target, oid); err != nil && !IsNotFound(err) {
					return err
				}
			}
		}
	case schema.Reverse:
		relatedEnt, inverse, rerr := c.reg.ReverseField(entity, f.Relation)
		if rerr != nil {
			return NewRelationError(entity, f.Name)
		}
		if f.Relation.Weak {
			// Unlinked children are orphans; delete each with its own
			// dependent cleanup rather than in bulk.
			b := newBuilder(c.cp.dialect)
			rpk := relatedEnt.PrimaryKey()
			stmt := "SELECT " + b.quote(rpk) + " FROM " + b.quote(c.reg.Table(relatedEnt.Name)) +
				" WHERE " + b.quote(inverse.Name) + " = " + b.arg(id)
			stmt += c.narrowBy(b, rpk, related, all)
			rows, err := queryConn(ctx, tx, stmt, b.args)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := c.deleteOne(ctx, tx, relatedEnt, r[rpk]); err != nil && !IsNotFound(err) {
					return err
				}
			}
			return nil
		}
		b := newBuilder(c.cp.dialect)
		stmt := "UPDATE " + b.quote(c.reg.Table(relatedEnt.Name)) +
			" SET " + b.quote(inverse.Name) + " = NULL" +
			" WHERE " + b.quote(inverse.Name) + " = " + b.arg(id)
		stmt += c.narrowBy(b, relatedEnt.PrimaryKey(), related, all)
		if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
			return err
		}
	default:
		var orphan any
		if f.Relation.Weak {
			b := newBuilder(c.cp.dialect)
			stmt := "SELECT " + b.quote(f.Name) + " FROM " + b.quote(c.reg.Table(entity)) +
				" WHERE " + b.quote(ent.PrimaryKey()) + " = " + b.arg(id)
			rows, err := queryConn(ctx, tx, stmt, b.args)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				orphan = rows[0][f.Name]
			}
		}
		b := newBuilder(c.cp.dialect)
		stmt := "UPDATE " + b.quote(c.reg.Table(entity)) +
			" SET " + b.quote(f.Name) + " = NULL" +
			" WHERE " + b.quote(ent.PrimaryKey()) + " = " + b.arg(id)
		if _, err := c.exec(ctx, tx, stmt, b.args); err != nil {
			return err
		}
		if orphan != nil {
			if err := c.deleteOne(ctx, tx, target, orphan); err != nil && !IsNotFound(err) {
				return err
			}
		}
	}
	return nil
}

// narrowBy renders the id narrowing of an unlink statement. An explicit
// empty set matches nothing rather than everything.
func (c *Client) narrowBy(b *builder, col string, related []any, all bool) string {
	if all {
		return ""
	}
	if len(related) == 0 {
		return " AND 1 = 0"
	}
	return " AND " + b.quote(col) + " IN (" + b.argList(related) + ")"
}

// invalidate drops cached reads of the written entity, of every entity
// whose reads embed it through a declared relation, and of the relation
// targets touched by the written values.
func (c *Client) invalidate(ctx context.Context, entity string, values Record) {
	if c.cache == nil {
		return
	}
	c.cache.DeletePrefix(ctx, entity+":")
	for _, dep := range c.reg.Dependents(entity) {
		if dep != entity {
			c.cache.DeletePrefix(ctx, dep+":")
		}
	}
	if values == nil {
		return
	}
	ent := c.reg.Entity(entity)
	if ent == nil {
		return
	}
	for i := range ent.Fields {
		f := &ent.Fields[i]
		if f.Type != schema.TypeRelation {
			continue
		}
		if _, ok := values[f.Name]; ok {
			c.cache.DeletePrefix(ctx, f.Relation.Target+":")
		}
	}
}

// toSlice normalizes a list-shaped value into []any.
func toSlice(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
