package vesta

import (
	"context"
	"strconv"
	"strings"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
	sqlgw "github.com/VestaRayanAfzar/vesta-driver-mssql/dialect/sql"
	"github.com/VestaRayanAfzar/vesta-driver-mssql/schema"
)

// CreateTables drops and recreates the tables backing every registered
// entity: the entity tables, junction tables for many-to-many
// relations, side tables for list fields and translation tables for
// entities with multilingual fields. It is destructive and meant for
// provisioning and tests.
func (c *Client) CreateTables(ctx context.Context) error {
	for _, ent := range c.reg.Entities() {
		if !sqlgw.ValidIdentifier(ent.Name) {
			return NewInputError("entity name %q is not a valid identifier", ent.Name)
		}
		for i := range ent.Fields {
			if !sqlgw.ValidIdentifier(ent.Fields[i].Name) {
				return NewInputError("field name %s.%q is not a valid identifier", ent.Name, ent.Fields[i].Name)
			}
		}
	}
	var stmts []string
	for _, ent := range c.reg.Entities() {
		stmts = append(stmts, c.entityDDL(ent)...)
	}
	for _, stmt := range stmts {
		if err := c.conn().Exec(ctx, stmt, []any{}, nil); err != nil {
			return wrapMutation("schema", "create", err)
		}
	}
	return nil
}

// entityDDL emits the drop-then-create statements of one entity and its
// dependent tables.
func (c *Client) entityDDL(ent *schema.Entity) []string {
	b := newBuilder(c.cp.dialect)
	var stmts []string
	drop := func(table string) {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+b.quote(table))
	}

	pk := ent.PrimaryKey()
	var cols []string
	pkDeclared := false
	hasTranslations := false
	for i := range ent.Fields {
		f := &ent.Fields[i]
		if f.Multilingual {
			hasTranslations = true
		}
		switch f.Type {
		case schema.TypeList:
			drop(c.reg.ListTable(ent.Name, f.Name))
			fk, value := c.reg.ListColumns(ent.Name)
			stmts = append(stmts, "CREATE TABLE "+b.quote(c.reg.ListTable(ent.Name, f.Name))+" ("+
				b.quote(fk)+" "+c.keyColumnType(ent)+" NOT NULL, "+
				b.quote(value)+" "+c.scalarColumnType(f.ListOf, 0)+")")
			continue
		case schema.TypeRelation:
			switch f.Relation.Kind {
			case schema.ManyToMany:
				drop(c.reg.JunctionTable(ent.Name, f.Name))
				ownerCol, relatedCol := c.reg.JunctionColumns(ent.Name, f.Name)
				stmts = append(stmts, "CREATE TABLE "+b.quote(c.reg.JunctionTable(ent.Name, f.Name))+" ("+
					b.quote(ownerCol)+" "+c.keyColumnType(ent)+" NOT NULL, "+
					b.quote(relatedCol)+" "+c.keyColumnTypeOf(f.Relation.Target)+" NOT NULL, "+
					"PRIMARY KEY ("+b.quote(ownerCol)+", "+b.quote(relatedCol)+"))")
				continue
			case schema.Reverse:
				continue
			default:
				cols = append(cols, b.quote(f.Name)+" "+c.keyColumnTypeOf(f.Relation.Target))
				continue
			}
		}
		def := b.quote(f.Name) + " " + c.columnType(f)
		if f.Primary {
			pkDeclared = true
			def += " PRIMARY KEY"
		} else {
			if f.Required {
				def += " NOT NULL"
			}
			if f.Default != nil {
				def += " DEFAULT " + c.ddlLiteral(f.Default)
			}
			if f.Unique {
				def += " UNIQUE"
			}
		}
		cols = append(cols, def)
	}
	if !pkDeclared && ent.Field(pk) == nil {
		cols = append([]string{b.quote(pk) + " " + c.autoKeyType() + " PRIMARY KEY"}, cols...)
	}
	drop(c.reg.Table(ent.Name))
	stmts = append(stmts, "CREATE TABLE "+b.quote(c.reg.Table(ent.Name))+" ("+strings.Join(cols, ", ")+")")

	if hasTranslations {
		drop(c.reg.TranslationTable(ent.Name))
		fk, _ := c.reg.ListColumns(ent.Name)
		stmts = append(stmts, "CREATE TABLE "+b.quote(c.reg.TranslationTable(ent.Name))+" ("+
			b.quote(fk)+" "+c.keyColumnType(ent)+" NOT NULL, "+
			b.quote("locale")+" "+c.scalarColumnType(schema.TypeString, 35)+" NOT NULL, "+
			b.quote("field")+" "+c.scalarColumnType(schema.TypeString, 64)+" NOT NULL, "+
			b.quote("value")+" "+c.scalarColumnType(schema.TypeText, 0)+", "+
			"PRIMARY KEY ("+b.quote(fk)+", "+b.quote("locale")+", "+b.quote("field")+"))")
	}
	return stmts
}

// ddlLiteral renders a default value. Booleans map to the BIT values on
// SQL Server and to boolean literals elsewhere.
func (c *Client) ddlLiteral(v any) string {
	if bv, ok := v.(bool); ok && c.cp.dialect != dialect.MSSQL {
		if bv {
			return "TRUE"
		}
		return "FALSE"
	}
	return literal(v)
}

// columnType renders the column type of a declared field.
func (c *Client) columnType(f *schema.Field) string {
	if f.Primary {
		if f.Type == schema.TypeString {
			return c.stringKeyType()
		}
		return c.autoKeyType()
	}
	return c.scalarColumnType(f.Type, f.MaxLength)
}

// scalarColumnType maps a scalar field type to the dialect's column
// type. Timestamps are stored as epoch milliseconds.
func (c *Client) scalarColumnType(t schema.FieldType, maxLen int) string {
	mssql := c.cp.dialect == dialect.MSSQL
	switch t {
	case schema.TypeBoolean:
		if mssql {
			return "BIT"
		}
		return "BOOLEAN"
	case schema.TypeInteger, schema.TypeEnum:
		return "INT"
	case schema.TypeFloat:
		switch c.cp.dialect {
		case dialect.MSSQL:
			return "FLOAT"
		case dialect.MySQL:
			return "DOUBLE"
		default:
			return "DOUBLE PRECISION"
		}
	case schema.TypeTimestamp:
		return "BIGINT"
	case schema.TypeText, schema.TypeObject:
		if mssql {
			return "NTEXT"
		}
		return "TEXT"
	default:
		n := "255"
		if maxLen > 0 {
			n = strconv.Itoa(maxLen)
		}
		if mssql {
			return "NVARCHAR(" + n + ")"
		}
		return "VARCHAR(" + n + ")"
	}
}

// autoKeyType is the auto-incrementing primary-key column type.
func (c *Client) autoKeyType() string {
	switch c.cp.dialect {
	case dialect.MSSQL:
		return "BIGINT IDENTITY(1,1)"
	case dialect.MySQL:
		return "BIGINT AUTO_INCREMENT"
	case dialect.Postgres:
		return "BIGSERIAL"
	default:
		return "INTEGER"
	}
}

// stringKeyType is the column type of application-generated string keys.
func (c *Client) stringKeyType() string {
	if c.cp.dialect == dialect.MSSQL {
		return "NVARCHAR(36)"
	}
	return "VARCHAR(36)"
}

// keyColumnType is the type of a column referencing ent's primary key.
func (c *Client) keyColumnType(ent *schema.Entity) string {
	if pf := ent.Field(ent.PrimaryKey()); pf != nil && pf.Type == schema.TypeString {
		return c.stringKeyType()
	}
	return "BIGINT"
}

// keyColumnTypeOf is keyColumnType for an entity looked up by name.
// Unknown targets fall back to BIGINT; the registry validates targets
// when relations are used.
func (c *Client) keyColumnTypeOf(entity string) string {
	if ent := c.reg.Entity(entity); ent != nil {
		return c.keyColumnType(ent)
	}
	return "BIGINT"
}
