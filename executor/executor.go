package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Executor runs one textual statement at a time against the store.
type Executor interface {
	// Exec executes stmt and returns an error if the store rejected it
	Exec(ctx context.Context, stmt string) error
}

// Transactor is implemented by executors that can run a sequence of
// statements inside a single store transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Executor) error) error
}

// StatementError reports a statement the store refused.
type StatementError struct {
	Stmt string
	// Code is the SQLSTATE (PostgreSQL) or extended result code (SQLite), when known.
	Code string
	Err  error
}

func (e *StatementError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("statement failed [%s]: %v: %s", e.Code, e.Err, summarize(e.Stmt))
	}
	return fmt.Sprintf("statement failed: %v: %s", e.Err, summarize(e.Stmt))
}

func (e *StatementError) Unwrap() error { return e.Err }

// wrapStatementError attaches stmt and the driver error code to err.
func wrapStatementError(stmt string, err error) error {
	if err == nil {
		return nil
	}
	se := &StatementError{Stmt: stmt, Err: err}

	var pgErr *pgconn.PgError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgErr):
		se.Code = pgErr.Code
	case errors.As(err, &liteErr):
		se.Code = fmt.Sprintf("sqlite:%d", int(liteErr.ExtendedCode))
	}
	return se
}

// summarize collapses a statement to a single line short enough for logs.
func summarize(stmt string) string {
	s := strings.Join(strings.Fields(stmt), " ")
	const maxLen = 120
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
