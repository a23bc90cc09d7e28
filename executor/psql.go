package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner abstracts process execution for testing
type Runner interface {
	// Run executes a command and returns its combined stderr on failure
	Run(ctx context.Context, name string, args ...string) error
}

// OSRunner implements Runner using os/exec
type OSRunner struct {
	stdout io.Writer
}

func (r OSRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = r.stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// PsqlExecutor runs each statement through a separate psql process. It
// cannot hold a transaction open across statements.
type PsqlExecutor struct {
	dbURL   string
	binary  string
	runner  Runner
	verbose bool
	stderr  io.Writer
}

// PsqlOption configures a PsqlExecutor
type PsqlOption func(*PsqlExecutor)

// WithRunner replaces the process runner
func WithRunner(r Runner) PsqlOption {
	return func(e *PsqlExecutor) {
		e.runner = r
	}
}

// WithBinary sets the psql binary path
func WithBinary(path string) PsqlOption {
	return func(e *PsqlExecutor) {
		e.binary = path
	}
}

// WithEcho prints each command line to stderr before running it
func WithEcho(verbose bool) PsqlOption {
	return func(e *PsqlExecutor) {
		e.verbose = verbose
	}
}

// NewPsql creates a PsqlExecutor targeting dbURL.
func NewPsql(dbURL string, opts ...PsqlOption) *PsqlExecutor {
	e := &PsqlExecutor{
		dbURL:  dbURL,
		binary: "psql",
		runner: OSRunner{},
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Args returns the psql argument list used for stmt.
func (e *PsqlExecutor) Args(stmt string) []string {
	return []string{"-X", "-q", "-v", "ON_ERROR_STOP=1", "-c", stmt, e.dbURL}
}

func (e *PsqlExecutor) Exec(ctx context.Context, stmt string) error {
	if e.verbose {
		fmt.Fprintf(e.stderr, "$ %s -c %q\n", e.binary, summarize(stmt))
	}
	if err := e.runner.Run(ctx, e.binary, e.Args(stmt)...); err != nil {
		return wrapStatementError(stmt, err)
	}
	return nil
}
