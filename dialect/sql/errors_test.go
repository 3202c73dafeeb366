package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
)

func TestConstraintErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		unique bool
		fk     bool
		check  bool
	}{
		{
			name:   "mssql duplicate key",
			err:    mssql.Error{Number: 2627, Message: "Violation of UNIQUE KEY constraint"},
			unique: true,
		},
		{
			name:   "mssql duplicate index row",
			err:    mssql.Error{Number: 2601},
			unique: true,
		},
		{
			name: "mssql foreign key conflict",
			err:  mssql.Error{Number: 547, Message: `The INSERT statement conflicted with the FOREIGN KEY constraint "FK_posts_users"`},
			fk:   true,
		},
		{
			name:  "mssql check conflict",
			err:   mssql.Error{Number: 547, Message: `The INSERT statement conflicted with the CHECK constraint "CK_age"`},
			check: true,
		},
		{
			name:   "mysql duplicate entry",
			err:    &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			unique: true,
		},
		{
			name: "mysql child row fk",
			err:  &mysql.MySQLError{Number: 1452},
			fk:   true,
		},
		{
			name: "mysql parent row fk",
			err:  &mysql.MySQLError{Number: 1451},
			fk:   true,
		},
		{
			name:  "mysql check violation",
			err:   &mysql.MySQLError{Number: 3819},
			check: true,
		},
		{
			name:   "postgres unique violation",
			err:    &pq.Error{Code: "23505"},
			unique: true,
		},
		{
			name: "postgres fk violation",
			err:  &pq.Error{Code: "23503"},
			fk:   true,
		},
		{
			name:  "postgres check violation",
			err:   &pq.Error{Code: "23514"},
			check: true,
		},
		{
			name:   "sqlite unique text",
			err:    errors.New("UNIQUE constraint failed: users.email"),
			unique: true,
		},
		{
			name: "sqlite fk text",
			err:  errors.New("FOREIGN KEY constraint failed"),
			fk:   true,
		},
		{
			name:  "sqlite check text",
			err:   errors.New("CHECK constraint failed: age"),
			check: true,
		},
		{
			name:   "wrapped errors are unwrapped",
			err:    fmt.Errorf("dialect/sql: exec: %w", &mysql.MySQLError{Number: 1062}),
			unique: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection refused"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.fk, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err))
			assert.Equal(t, tt.unique || tt.fk || tt.check, IsConstraintError(tt.err))
		})
	}
}

func TestConstraintErrorNil(t *testing.T) {
	assert.False(t, IsConstraintError(nil))
	assert.False(t, IsUniqueConstraintError(nil))
	assert.False(t, IsForeignKeyConstraintError(nil))
	assert.False(t, IsCheckConstraintError(nil))
}
