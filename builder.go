package vesta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
	sqlgw "github.com/VestaRayanAfzar/vesta-driver-mssql/dialect/sql"
)

// builder accumulates bound parameters and dialect-specific rendering
// for one statement. Placeholder numbering follows the order arguments
// are appended, so fragments must be rendered in the order they appear
// in the final statement.
type builder struct {
	dialect string
	args    []any
	aliases map[string]int
}

func newBuilder(d string) *builder {
	return &builder{dialect: d, aliases: make(map[string]int)}
}

// arg appends v to the bound parameters and returns its placeholder.
func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	n := len(b.args)
	switch b.dialect {
	case dialect.MSSQL:
		return "@p" + strconv.Itoa(n)
	case dialect.Postgres:
		return "$" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// argList appends every value and returns the comma-joined placeholder
// list for an IN clause.
func (b *builder) argList(vs []any) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = b.arg(v)
	}
	return strings.Join(parts, ", ")
}

// alias reserves a statement-unique alias derived from base. The first
// use of a base keeps it verbatim; genuine collisions get a counter.
func (b *builder) alias(base string) string {
	n := b.aliases[base]
	b.aliases[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(n+1)
}

// quote quotes an identifier for the builder's dialect.
func (b *builder) quote(ident string) string {
	switch b.dialect {
	case dialect.MSSQL:
		return "[" + ident + "]"
	case dialect.MySQL:
		return "`" + ident + "`"
	default:
		return `"` + ident + `"`
	}
}

// qualify renders alias.column, both quoted.
func (b *builder) qualify(alias, column string) string {
	return b.quote(alias) + "." + b.quote(column)
}

// concat renders a string concatenation of the given expressions.
func (b *builder) concat(parts ...string) string {
	switch b.dialect {
	case dialect.MSSQL, dialect.MySQL:
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	default:
		return strings.Join(parts, " || ")
	}
}

// castText renders expr cast to a textual type.
func (b *builder) castText(expr string) string {
	switch b.dialect {
	case dialect.MSSQL:
		return "CAST(" + expr + " AS NVARCHAR(128))"
	case dialect.MySQL:
		return "CAST(" + expr + " AS CHAR)"
	default:
		return "CAST(" + expr + " AS TEXT)"
	}
}

// jsonEscape renders expr with double quotes escaped for embedding
// inside a JSON string literal built by SQL concatenation.
func (b *builder) jsonEscape(expr string) string {
	esc := `'\"'`
	if b.dialect == dialect.MySQL {
		// MySQL processes backslash escapes inside string literals.
		esc = `'\\"'`
	}
	return `REPLACE(` + expr + `, '"', ` + esc + `)`
}

// coalesce renders expr with NULL collapsed to the empty string, so a
// NULL column does not null out an entire concatenation.
func (b *builder) coalesce(expr string) string {
	return "COALESCE(" + expr + ", '')"
}

// pagination renders the dialect's pagination clause. Limits and
// offsets are integers controlled by the engine, rendered inline.
// SQL Server's OFFSET/FETCH form requires an ORDER BY; the compiler
// guarantees one is present whenever this is rendered.
func (b *builder) pagination(limit, offset int) string {
	switch b.dialect {
	case dialect.MSSQL:
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	default:
		if offset > 0 {
			return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
		}
		return fmt.Sprintf("LIMIT %d", limit)
	}
}

// selectOne renders "SELECT <expr> ... LIMIT 1" for a correlated scalar
// sub-select, honoring the dialect's single-row form.
func (b *builder) selectOne(expr, from, where string) string {
	if b.dialect == dialect.MSSQL {
		return "SELECT TOP 1 " + expr + " FROM " + from + " WHERE " + where
	}
	return "SELECT " + expr + " FROM " + from + " WHERE " + where + " LIMIT 1"
}

// literal renders a value as an inline SQL literal: numbers unquoted,
// booleans as 0/1, strings quoted with embedded quotes doubled. Bound
// parameters are preferred everywhere; this is used only for DDL
// defaults and fixed fragments.
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32, float64:
		return fmt.Sprintf("%v", x)
	default:
		return "'" + sqlgw.EscapeString(fmt.Sprintf("%v", x)) + "'"
	}
}

// keyOf normalizes a scanned value for use as a correlation map key,
// so an int64 from one scan matches a string id from another.
func keyOf(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
