package main

import (
	"context"
	"log"

	"recipebook/db"
	"recipebook/executor"

	"go.uber.org/zap"
)

func main() {
	// Initialize a demo database without any seed data
	dbPath := "recipes.db"

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	desc := &db.Descriptor{Driver: db.DriverSQLite, DSN: dbPath, Database: dbPath}
	gdb, err := db.Open(desc, false)
	if err != nil {
		sugar.Fatalw("Failed to open database", "path", dbPath, "error", err)
	}

	dialect, err := db.DialectFor(desc.Driver)
	if err != nil {
		sugar.Fatalw("Failed to initialize database", "error", err)
	}
	err = db.Bootstrap(context.Background(), executor.NewGorm(gdb), dialect, db.BootstrapOptions{SkipSeed: true, Atomic: true}, sugar)
	if err != nil {
		sugar.Fatalw("Failed to initialize database", "error", err)
	}

	sugar.Infow("Demo database initialized successfully", "path", dbPath)
}
