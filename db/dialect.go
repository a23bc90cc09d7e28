package db

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// bootstrapLockKey identifies the advisory lock held for the duration of an
// atomic bootstrap on PostgreSQL.
const bootstrapLockKey = 727_110_001

// A Dialect renders the store-specific parts of schema and seed statements.
type Dialect interface {
	Name() string
	// IDColumn is the column definition of a store-assigned surrogate key.
	IDColumn() string
	// RefType is the column type of a reference to an IDColumn.
	RefType() string
	// Timestamp is a NOT NULL column type defaulted to the row-creation instant.
	Timestamp() string
	// Quote renders s as a string literal.
	Quote(s string) string
	// ReplaceView returns the statements that (re)define view name as body.
	ReplaceView(name, body string) []string
	// LockStatements are issued first inside an atomic bootstrap transaction.
	LockStatements() []string
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case DriverPostgres:
		return postgresDialect{}, nil
	case DriverSQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}

type postgresDialect struct{}

func (postgresDialect) Name() string      { return DriverPostgres }
func (postgresDialect) IDColumn() string  { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) RefType() string   { return "BIGINT" }
func (postgresDialect) Timestamp() string { return "TIMESTAMPTZ NOT NULL DEFAULT now()" }

func (postgresDialect) Quote(s string) string { return pq.QuoteLiteral(s) }

func (postgresDialect) ReplaceView(name, body string) []string {
	return []string{fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", name, body)}
}

func (postgresDialect) LockStatements() []string {
	return []string{fmt.Sprintf("SELECT pg_advisory_xact_lock(%d)", bootstrapLockKey)}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string      { return DriverSQLite }
func (sqliteDialect) IDColumn() string  { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) RefType() string   { return "INTEGER" }
func (sqliteDialect) Timestamp() string { return "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP" }

func (sqliteDialect) Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SQLite has no CREATE OR REPLACE VIEW.
func (sqliteDialect) ReplaceView(name, body string) []string {
	return []string{
		fmt.Sprintf("DROP VIEW IF EXISTS %s", name),
		fmt.Sprintf("CREATE VIEW %s AS\n%s", name, body),
	}
}

// A SQLite write transaction already excludes other writers.
func (sqliteDialect) LockStatements() []string { return nil }
