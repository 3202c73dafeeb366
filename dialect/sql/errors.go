package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
)

// SQL Server error numbers for constraint violations.
const (
	mssqlUniqueIndex      = 2601 // Cannot insert duplicate key row
	mssqlUniqueConstraint = 2627 // Violation of UNIQUE KEY constraint
	mssqlConstraint       = 547  // Conflict with FOREIGN KEY or CHECK constraint
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError reports whether the error resulted from a database
// constraint violation of any kind.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports whether the error resulted from a
// uniqueness violation, e.g. a duplicate value in a unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var serr mssql.Error
	if errors.As(err, &serr) {
		return serr.Number == mssqlUniqueIndex || serr.Number == mssqlUniqueConstraint
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == mysqlDuplicateEntry
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		return string(perr.Code) == pgUniqueViolation
	}
	// SQLite (and unwrapped drivers) surface constraint failures as text.
	return containsAny(err.Error(),
		"UNIQUE constraint failed",   // SQLite
		"violates unique constraint", // Postgres fallback
		"Error 1062",                 // MySQL fallback
	)
}

// IsForeignKeyConstraintError reports whether the error resulted from a
// foreign-key violation, e.g. the referenced row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var serr mssql.Error
	if errors.As(err, &serr) {
		// SQL Server reports FK and CHECK conflicts under the same number;
		// disambiguate by the statement text it echoes back.
		return serr.Number == mssqlConstraint && strings.Contains(serr.Message, "FOREIGN KEY")
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == mysqlForeignKeyParent || merr.Number == mysqlForeignKeyChild
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		return string(perr.Code) == pgForeignKeyViolation
	}
	return containsAny(err.Error(),
		"FOREIGN KEY constraint failed",   // SQLite
		"violates foreign key constraint", // Postgres fallback
		"Error 1451",                      // MySQL fallback
		"Error 1452",                      // MySQL fallback
	)
}

// IsCheckConstraintError reports whether the error resulted from a CHECK
// constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var serr mssql.Error
	if errors.As(err, &serr) {
		return serr.Number == mssqlConstraint && strings.Contains(serr.Message, "CHECK")
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == mysqlCheckConstraintViolate
	}
	var perr *pq.Error
	if errors.As(err, &perr) {
		return string(perr.Code) == pgCheckViolation
	}
	return containsAny(err.Error(),
		"CHECK constraint failed",   // SQLite
		"violates check constraint", // Postgres fallback
		"Error 3819",                // MySQL fallback
	)
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
