package vesta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/VestaRayanAfzar/vesta-driver-mssql/dialect"
)

func TestCompileCondition(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		cond    *Condition
		want    string
		args    []any
	}{
		{
			name:    "leaf equality",
			dialect: dialect.MySQL,
			cond:    EQ("views", 3),
			want:    "(`post`.`views` = ?)",
			args:    []any{3},
		},
		{
			name:    "leaf equality mssql placeholders",
			dialect: dialect.MSSQL,
			cond:    EQ("views", 3),
			want:    "([post].[views] = @p1)",
			args:    []any{3},
		},
		{
			name:    "leaf equality postgres placeholders",
			dialect: dialect.Postgres,
			cond:    EQ("views", 3),
			want:    `("post"."views" = $1)`,
			args:    []any{3},
		},
		{
			name:    "like",
			dialect: dialect.MySQL,
			cond:    Like("title", "go%"),
			want:    "(`post`.`title` LIKE ?)",
			args:    []any{"go%"},
		},
		{
			name:    "nil value compiles to IS NULL",
			dialect: dialect.MySQL,
			cond:    EQ("title", nil),
			want:    "(`post`.`title` IS NULL)",
		},
		{
			name:    "nil value compiles to IS NOT NULL",
			dialect: dialect.MySQL,
			cond:    NEQ("title", nil),
			want:    "(`post`.`title` IS NOT NULL)",
		},
		{
			name:    "nil value on ordering operator is dropped",
			dialect: dialect.MySQL,
			cond:    GT("views", nil),
			want:    "",
		},
		{
			name:    "column reference value",
			dialect: dialect.MySQL,
			cond:    GT("views", "id").FieldValue(),
			want:    "(`post`.`views` > `post`.`id`)",
		},
		{
			name:    "unknown field is dropped silently",
			dialect: dialect.MySQL,
			cond:    EQ("ghost", 1),
			want:    "",
		},
		{
			name:    "empty connector collapses",
			dialect: dialect.MySQL,
			cond:    And(),
			want:    "",
		},
		{
			name:    "connector drops empty children and unwraps survivor",
			dialect: dialect.MySQL,
			cond:    And(EQ("ghost", 1), EQ("views", 2)),
			want:    "(`post`.`views` = ?)",
			args:    []any{2},
		},
		{
			name:    "nested connectors",
			dialect: dialect.MySQL,
			cond:    Or(EQ("views", 1), And(GT("views", 2), LT("views", 3))),
			want:    "((`post`.`views` = ?) OR ((`post`.`views` > ?) AND (`post`.`views` < ?)))",
			args:    []any{1, 2, 3},
		},
		{
			name:    "placeholder numbering skips dropped leaves",
			dialect: dialect.MSSQL,
			cond:    And(EQ("ghost", 1), EQ("views", 2), NEQ("title", "x")),
			want:    "(([post].[views] = @p1) AND ([post].[title] <> @p2))",
			args:    []any{2, "x"},
		},
		{
			name:    "model override resolves against another entity",
			dialect: dialect.MySQL,
			cond:    EQ("name", "bob").On("User"),
			want:    "(`post`.`name` = ?)",
			args:    []any{"bob"},
		},
		{
			name:    "model override still validates the field",
			dialect: dialect.MySQL,
			cond:    EQ("views", 1).On("User"),
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := testCompiler(t, tt.dialect)
			b := newBuilder(tt.dialect)
			got := cp.compileCondition("Post", tt.cond, "post", b)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, b.args)
		})
	}
}

func TestCompileConditionNil(t *testing.T) {
	cp := testCompiler(t, dialect.MySQL)
	b := newBuilder(dialect.MySQL)
	assert.Equal(t, "", cp.compileCondition("Post", nil, "post", b))
	assert.Empty(t, b.args)
}
