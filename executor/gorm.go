package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormExecutor executes statements over a gorm connection.
type GormExecutor struct {
	db      *gorm.DB
	logger  *zap.SugaredLogger
	verbose bool
}

// GormOption configures a GormExecutor
type GormOption func(*GormExecutor)

// WithLogger sets the logger used for statement tracing
func WithLogger(logger *zap.SugaredLogger) GormOption {
	return func(e *GormExecutor) {
		e.logger = logger
	}
}

// WithVerbose logs every statement before it runs
func WithVerbose(verbose bool) GormOption {
	return func(e *GormExecutor) {
		e.verbose = verbose
	}
}

// NewGorm creates a GormExecutor over db.
func NewGorm(db *gorm.DB, opts ...GormOption) *GormExecutor {
	e := &GormExecutor{
		db:     db,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *GormExecutor) Exec(ctx context.Context, stmt string) error {
	if e.verbose {
		e.logger.Debugw("exec", "stmt", summarize(stmt))
	}
	return wrapStatementError(stmt, e.db.WithContext(ctx).Exec(stmt).Error)
}

// InTx runs fn against an executor bound to a single transaction. The
// transaction commits only if fn returns nil.
func (e *GormExecutor) InTx(ctx context.Context, fn func(Executor) error) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormExecutor{db: tx, logger: e.logger, verbose: e.verbose})
	})
	if err != nil {
		return fmt.Errorf("transaction rolled back: %w", err)
	}
	return nil
}
