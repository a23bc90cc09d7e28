package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"recipebook/db"
	"recipebook/executor"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	envPrefix         = "RECIPEBOOK"
	defaultConnFile   = "database.url"
	defaultMaxBackups = 5
	backupFileExt     = ".bak"

	executorGorm = "gorm"
	executorPsql = "psql"
)

type config struct {
	ConnFile   string
	Executor   string
	PsqlBinary string
	Seed       bool
	SeedFile   string
	Atomic     bool
	DryRun     bool
	Report     bool
	Backup     bool
	MaxBackups int
	Verbose    bool
}

func loadConfig() config {
	return config{
		ConnFile:   viper.GetString("conn-file"),
		Executor:   viper.GetString("executor"),
		PsqlBinary: viper.GetString("psql-binary"),
		Seed:       viper.GetBool("seed"),
		SeedFile:   viper.GetString("seed-file"),
		Atomic:     viper.GetBool("atomic"),
		DryRun:     viper.GetBool("dry-run"),
		Report:     viper.GetBool("report"),
		Backup:     viper.GetBool("backup"),
		MaxBackups: viper.GetInt("max-backups"),
		Verbose:    viper.GetBool("verbose"),
	}
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("run_id", uuid.NewString()), nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the recipe schema and load seed data",
		Long: `bootstrap ensures every table, index and view of the recipe schema exists
and then reconciles the seed data. Every statement is idempotent, so the
command can be re-run after fixing whatever made a previous run fail.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			logger, err := newLogger(cfg.Verbose)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, cmd.OutOrStdout(), logger); err != nil {
				logger.Errorw("bootstrap failed", "error", err)
				_ = logger.Sync()
				os.Exit(1)
			}
		},
	}

	flags := rootCmd.Flags()
	flags.String("conn-file", defaultConnFile, "File holding the database connection URL")
	flags.String("executor", executorGorm, "Statement executor: gorm or psql")
	flags.String("psql-binary", "psql", "psql binary used by the psql executor")
	flags.Bool("seed", true, "Whether to load seed data into the database")
	flags.String("seed-file", "", "YAML seed set to load instead of the built-in one")
	flags.Bool("atomic", true, "Run the whole bootstrap in one locked transaction when the executor supports it")
	flags.Bool("dry-run", false, "Print the statements that would run and exit")
	flags.Bool("report", false, "Log row counts and recipe summaries after a successful run")
	flags.Bool("backup", true, "Whether to create a backup of a SQLite database file if it exists")
	flags.Int("max-backups", defaultMaxBackups, "Maximum number of backups to retain")
	flags.BoolP("verbose", "v", false, "Log every statement")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // binds environment variables to viper config
	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, out io.Writer, logger *zap.SugaredLogger) error {
	desc, err := db.ReadDescriptor(cfg.ConnFile)
	if err != nil {
		return err
	}
	dialect, err := db.DialectFor(desc.Driver)
	if err != nil {
		return err
	}
	logger = logger.With("target", desc.Redacted())

	opts := db.BootstrapOptions{
		Seed:     db.DefaultSeedSet(),
		SkipSeed: !cfg.Seed,
		Atomic:   cfg.Atomic,
	}
	if cfg.Seed && cfg.SeedFile != "" {
		if opts.Seed, err = db.LoadSeedFile(cfg.SeedFile); err != nil {
			return err
		}
		logger.Infow("loaded seed file", "path", cfg.SeedFile)
	}

	if cfg.DryRun {
		return printPlan(out, dialect, opts)
	}

	if cfg.Backup && desc.Driver == db.DriverSQLite && !desc.InMemory() {
		if err := backupDatabase(desc.DSN, cfg.MaxBackups, logger); err != nil {
			return err
		}
	}

	gdb, err := db.Open(desc, cfg.Verbose)
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	store := db.NewSQLStore(gdb)
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	exec, err := newExecutor(cfg, desc, gdb, logger)
	if err != nil {
		return err
	}

	logger.Infow("bootstrap starting", "dialect", dialect.Name(), "executor", cfg.Executor, "seed", cfg.Seed, "atomic", cfg.Atomic)
	if err := db.Bootstrap(ctx, exec, dialect, opts, logger); err != nil {
		return err
	}
	logger.Infow("bootstrap complete")

	if cfg.Report {
		return report(store, logger)
	}
	return nil
}

func printPlan(out io.Writer, d db.Dialect, opts db.BootstrapOptions) error {
	stmts, err := db.Plan(d, opts)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := fmt.Fprintf(out, "%s;\n\n", stmt); err != nil {
			return err
		}
	}
	return nil
}

func newExecutor(cfg config, desc *db.Descriptor, gdb *gorm.DB, logger *zap.SugaredLogger) (executor.Executor, error) {
	switch cfg.Executor {
	case executorGorm:
		return executor.NewGorm(gdb, executor.WithLogger(logger), executor.WithVerbose(cfg.Verbose)), nil
	case executorPsql:
		if desc.Driver != db.DriverPostgres {
			return nil, fmt.Errorf("the psql executor needs a PostgreSQL descriptor, got %s", desc.Driver)
		}
		return executor.NewPsql(desc.DSN, executor.WithBinary(cfg.PsqlBinary), executor.WithEcho(cfg.Verbose)), nil
	}
	return nil, fmt.Errorf("unknown executor %q", cfg.Executor)
}

func report(store db.Store, logger *zap.SugaredLogger) error {
	for _, rel := range db.Relations {
		n, err := store.CountRows(rel)
		if err != nil {
			return fmt.Errorf("count %s: %w", rel, err)
		}
		logger.Infow("relation", "table", rel, "rows", n)
	}
	summaries, err := store.ListRecipeSummaries()
	if err != nil {
		return fmt.Errorf("read recipe summaries: %w", err)
	}
	for _, s := range summaries {
		author := ""
		if s.AuthorName != nil {
			author = *s.AuthorName
		}
		logger.Infow("recipe", "title", s.Title, "author", author,
			"ingredients", s.IngredientCount, "steps", s.StepCount, "total_minutes", s.TotalMinutes())
	}
	return nil
}
