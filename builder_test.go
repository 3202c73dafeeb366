package vesta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
)

func TestBuilderPlaceholders(t *testing.T) {
	b := newBuilder(dialect.MSSQL)
	assert.Equal(t, "@p1", b.arg("a"))
	assert.Equal(t, "@p2", b.arg("b"))

	b = newBuilder(dialect.Postgres)
	assert.Equal(t, "$1", b.arg("a"))
	assert.Equal(t, "$2", b.arg("b"))

	b = newBuilder(dialect.MySQL)
	assert.Equal(t, "?", b.arg("a"))
	assert.Equal(t, "?", b.arg("b"))
	assert.Equal(t, []any{"a", "b"}, b.args)
}

func TestBuilderArgList(t *testing.T) {
	b := newBuilder(dialect.Postgres)
	assert.Equal(t, "$1, $2, $3", b.argList([]any{1, 2, 3}))
	assert.Equal(t, []any{1, 2, 3}, b.args)
}

func TestBuilderAlias(t *testing.T) {
	b := newBuilder(dialect.MySQL)
	assert.Equal(t, "post_author", b.alias("post_author"))
	assert.Equal(t, "post_author_2", b.alias("post_author"))
	assert.Equal(t, "post_author_3", b.alias("post_author"))
	assert.Equal(t, "post_tags", b.alias("post_tags"))
}

func TestBuilderQuote(t *testing.T) {
	assert.Equal(t, "[posts]", newBuilder(dialect.MSSQL).quote("posts"))
	assert.Equal(t, "`posts`", newBuilder(dialect.MySQL).quote("posts"))
	assert.Equal(t, `"posts"`, newBuilder(dialect.Postgres).quote("posts"))
	assert.Equal(t, `"posts"`, newBuilder(dialect.SQLite).quote("posts"))
}

func TestBuilderConcat(t *testing.T) {
	assert.Equal(t, "CONCAT('a', 'b')", newBuilder(dialect.MSSQL).concat("'a'", "'b'"))
	assert.Equal(t, "CONCAT('a', 'b')", newBuilder(dialect.MySQL).concat("'a'", "'b'"))
	assert.Equal(t, "'a' || 'b'", newBuilder(dialect.Postgres).concat("'a'", "'b'"))
}

func TestBuilderPagination(t *testing.T) {
	assert.Equal(t, "OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY", newBuilder(dialect.MSSQL).pagination(10, 20))
	assert.Equal(t, "OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY", newBuilder(dialect.MSSQL).pagination(10, 0))
	assert.Equal(t, "LIMIT 10 OFFSET 20", newBuilder(dialect.MySQL).pagination(10, 20))
	assert.Equal(t, "LIMIT 10", newBuilder(dialect.MySQL).pagination(10, 0))
}

func TestBuilderSelectOne(t *testing.T) {
	assert.Equal(t,
		"SELECT TOP 1 x FROM t WHERE y",
		newBuilder(dialect.MSSQL).selectOne("x", "t", "y"),
	)
	assert.Equal(t,
		"SELECT x FROM t WHERE y LIMIT 1",
		newBuilder(dialect.SQLite).selectOne("x", "t", "y"),
	)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "NULL", literal(nil))
	assert.Equal(t, "1", literal(true))
	assert.Equal(t, "0", literal(false))
	assert.Equal(t, "42", literal(42))
	assert.Equal(t, "1.5", literal(1.5))
	assert.Equal(t, "'hi'", literal("hi"))
	assert.Equal(t, "'it''s'", literal("it's"))
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, "7", keyOf(int64(7)))
	assert.Equal(t, "7", keyOf("7"))
	assert.Equal(t, "7", keyOf([]byte("7")))
	assert.Equal(t, keyOf(int64(7)), keyOf(7))
}
