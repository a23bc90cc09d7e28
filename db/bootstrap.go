package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"recipebook/executor"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the store named by desc. SQLite connections enforce
// foreign keys and are limited to a single open connection.
func Open(desc *Descriptor, verbose bool) (*gorm.DB, error) {
	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true, // Don't include params in the SQL log
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch desc.Driver {
	case DriverPostgres:
		dialector = postgres.Open(desc.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(desc.DSN))
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidDescriptor, desc.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	if desc.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to open DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// BootstrapOptions controls a bootstrap run.
type BootstrapOptions struct {
	Seed     SeedSet
	SkipSeed bool
	// Atomic runs the whole bootstrap in one transaction behind the
	// dialect's lock when the executor supports transactions.
	Atomic bool
}

// Plan renders every statement a non-atomic bootstrap would issue, without
// touching a store.
func Plan(d Dialect, opts BootstrapOptions) ([]string, error) {
	rec := &executor.Recorder{}
	opts.Atomic = false
	if err := Bootstrap(context.Background(), rec, d, opts, nil); err != nil {
		return nil, err
	}
	return rec.Statements, nil
}

// Bootstrap materializes the schema and then reconciles the seed data. The
// first failing statement aborts the run; every statement is idempotent, so
// the remedy is to fix the cause and run it again.
func Bootstrap(ctx context.Context, exec executor.Executor, d Dialect, opts BootstrapOptions, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := NewMaterializer(d, logger)
	var r *Reconciler
	if !opts.SkipSeed {
		if err := opts.Seed.Validate(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		r = NewReconciler(d, opts.Seed.Rules(), logger)
		// Render up front so a malformed rule fails before the schema is touched.
		if _, err := r.Statements(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}

	run := func(exec executor.Executor) error {
		if err := m.Materialize(ctx, exec); err != nil {
			return err
		}
		if r == nil {
			logger.Infow("bootstrap: database schema created but no seed data loaded")
			return nil
		}
		return r.Reconcile(ctx, exec)
	}

	tx, ok := exec.(executor.Transactor)
	if !opts.Atomic || !ok {
		if opts.Atomic {
			logger.Warnw("executor cannot hold a transaction; concurrent bootstraps may race")
		}
		if err := run(exec); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return nil
	}

	err := tx.InTx(ctx, func(exec executor.Executor) error {
		for _, stmt := range d.LockStatements() {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("acquire bootstrap lock: %w", err)
			}
		}
		return run(exec)
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}
