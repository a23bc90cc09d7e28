package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"recipebook/executor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor records statements and fails the failAt-th one (1-based).
type scriptedExecutor struct {
	stmts  []string
	failAt int
	txs    int
}

func (e *scriptedExecutor) Exec(_ context.Context, stmt string) error {
	e.stmts = append(e.stmts, stmt)
	if len(e.stmts) == e.failAt {
		return errors.New("permission denied")
	}
	return nil
}

// scriptedTransactor is a scriptedExecutor that also claims transaction support.
type scriptedTransactor struct {
	scriptedExecutor
}

func (e *scriptedTransactor) InTx(_ context.Context, fn func(executor.Executor) error) error {
	e.txs++
	return fn(e)
}

// faultyExecutor delegates to inner but fails any statement containing failOn.
type faultyExecutor struct {
	inner  executor.Executor
	failOn string
}

func (e *faultyExecutor) Exec(ctx context.Context, stmt string) error {
	if e.failOn != "" && strings.Contains(stmt, e.failOn) {
		return fmt.Errorf("injected failure")
	}
	return e.inner.Exec(ctx, stmt)
}

func (e *faultyExecutor) InTx(ctx context.Context, fn func(executor.Executor) error) error {
	return e.inner.(executor.Transactor).InTx(ctx, func(tx executor.Executor) error {
		return fn(&faultyExecutor{inner: tx, failOn: e.failOn})
	})
}

var defaultCounts = map[string]int64{
	"account":            2,
	"recipe":             3,
	"tag":                5,
	"ingredient_line":    16,
	"step":               11,
	"recipe_tag":         9,
	"favorite":           2,
	"shopping_list":      1,
	"shopping_list_item": 4,
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("converges from empty to the default seed set", func(t *testing.T) {
		db := setupTestDB(t)
		bootstrapTestDB(t, db)

		for table, want := range defaultCounts {
			assert.Equalf(t, want, countRows(t, db, table), "rows in %s", table)
		}
	})

	t.Run("running twice equals running once", func(t *testing.T) {
		db := setupTestDB(t)
		bootstrapTestDB(t, db)
		first, err := NewSQLStore(db).ListRecipeSummaries()
		require.NoError(t, err)

		bootstrapTestDB(t, db)
		for table, want := range defaultCounts {
			assert.Equalf(t, want, countRows(t, db, table), "rows in %s", table)
		}
		second, err := NewSQLStore(db).ListRecipeSummaries()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("skip seed leaves the relations empty", func(t *testing.T) {
		db := setupTestDB(t)
		err := Bootstrap(ctx, executor.NewGorm(db), sqliteDialect{}, BootstrapOptions{SkipSeed: true, Atomic: true}, nil)
		require.NoError(t, err)

		assert.ElementsMatch(t, Relations, schemaObjects(t, db, "table"))
		for _, rel := range Relations {
			assert.Zero(t, countRows(t, db, rel), rel)
		}
	})

	t.Run("a schema failure aborts before any seed statement", func(t *testing.T) {
		exec := &scriptedExecutor{failAt: 2}
		err := Bootstrap(ctx, exec, sqliteDialect{}, BootstrapOptions{Seed: DefaultSeedSet()}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "materialize table recipe")
		assert.Len(t, exec.stmts, 2)
	})

	t.Run("a seed failure aborts the remaining rules", func(t *testing.T) {
		schemaLen := len(NewMaterializer(sqliteDialect{}, nil).Statements())
		exec := &scriptedExecutor{failAt: schemaLen + 1}
		err := Bootstrap(ctx, exec, sqliteDialect{}, BootstrapOptions{Seed: DefaultSeedSet()}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed account alice@example.com")
		assert.Len(t, exec.stmts, schemaLen+1)
	})

	t.Run("an invalid seed set fails before any statement", func(t *testing.T) {
		exec := &scriptedExecutor{}
		seed := SeedSet{Accounts: []AccountSeed{{DisplayName: "No Email"}}}
		err := Bootstrap(ctx, exec, sqliteDialect{}, BootstrapOptions{Seed: seed}, nil)
		assert.ErrorIs(t, err, ErrInvalidSeedSet)
		assert.Empty(t, exec.stmts)
	})

	t.Run("atomic runs take the lock first inside one transaction", func(t *testing.T) {
		exec := &scriptedTransactor{}
		err := Bootstrap(ctx, exec, postgresDialect{}, BootstrapOptions{Seed: DefaultSeedSet(), Atomic: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, exec.txs)
		require.NotEmpty(t, exec.stmts)
		assert.Equal(t, "SELECT pg_advisory_xact_lock(727110001)", exec.stmts[0])
	})

	t.Run("non-atomic runs take no lock", func(t *testing.T) {
		exec := &scriptedTransactor{}
		err := Bootstrap(ctx, exec, postgresDialect{}, BootstrapOptions{Seed: DefaultSeedSet()}, nil)
		require.NoError(t, err)
		assert.Zero(t, exec.txs)
		assert.True(t, strings.HasPrefix(exec.stmts[0], "CREATE TABLE IF NOT EXISTS account"))
	})

	t.Run("executors without transactions run statement by statement", func(t *testing.T) {
		exec := &scriptedExecutor{}
		err := Bootstrap(ctx, exec, postgresDialect{}, BootstrapOptions{Seed: DefaultSeedSet(), Atomic: true}, nil)
		require.NoError(t, err)
		plan, err := Plan(postgresDialect{}, BootstrapOptions{Seed: DefaultSeedSet()})
		require.NoError(t, err)
		assert.Equal(t, plan, exec.stmts)
	})
}

func TestBootstrapFailureRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("atomic failure leaves nothing behind", func(t *testing.T) {
		db := setupTestDB(t)
		exec := &faultyExecutor{inner: executor.NewGorm(db), failOn: "INSERT INTO favorite"}

		err := Bootstrap(ctx, exec, sqliteDialect{}, BootstrapOptions{Seed: DefaultSeedSet(), Atomic: true}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "injected failure")

		assert.Empty(t, schemaObjects(t, db, "table"))
		assert.Empty(t, schemaObjects(t, db, "view"))
	})

	t.Run("non-atomic failure keeps progress and a re-run completes it", func(t *testing.T) {
		db := setupTestDB(t)
		exec := &faultyExecutor{inner: executor.NewGorm(db), failOn: "INSERT INTO favorite"}

		err := Bootstrap(ctx, exec, sqliteDialect{}, BootstrapOptions{Seed: DefaultSeedSet()}, nil)
		require.Error(t, err)
		assert.EqualValues(t, 3, countRows(t, db, "recipe"))
		assert.Zero(t, countRows(t, db, "favorite"))

		bootstrapTestDB(t, db)
		for table, want := range defaultCounts {
			assert.Equalf(t, want, countRows(t, db, table), "rows in %s", table)
		}
	})
}

func TestPlan(t *testing.T) {
	schema := NewMaterializer(sqliteDialect{}, nil).Statements()

	plan, err := Plan(sqliteDialect{}, BootstrapOptions{Seed: DefaultSeedSet()})
	require.NoError(t, err)
	assert.Len(t, plan, len(schema)+len(DefaultSeedSet().Rules()))
	assert.Equal(t, schema, plan[:len(schema)])

	schemaOnly, err := Plan(sqliteDialect{}, BootstrapOptions{SkipSeed: true})
	require.NoError(t, err)
	assert.Equal(t, schema, schemaOnly)
}
