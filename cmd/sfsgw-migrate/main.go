// Package main is the entry point for the sfsgw database migration
// tool. The embedded SQLite schema migrates and reconciles itself the
// moment the database opens (internal/store/sqlite.NewDB), so this
// tool's job is to trigger that open and report what happened, rather
// than to run a separate migration step.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sfsgw/internal/config"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "up", "status":
		runMigration(command)

	case "version":
		fmt.Printf("sfsgw Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runMigration(command string) {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create storage data path: %v\n", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.Storage.DataPath, "s3gw.db")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(dbPath), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read schema version: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "up":
		fmt.Printf("database at %s is at schema version %d\n", dbPath, version)
	case "status":
		fmt.Printf("path:            %s\n", dbPath)
		fmt.Printf("schema_version:  %d\n", version)
	}
}

func printUsage() {
	fmt.Println(`sfsgw Migration Tool

Usage:
  sfsgw-migrate <command>

Commands:
  up          Open the database, applying and reconciling its schema
  status      Report the database path and current schema version
  version     Print version information
  help        Show this help message

Environment Variables:
  SFSGW_STORAGE_DATA_PATH    Root directory for the embedded database
                             (overrides storage.data_path in config)

Examples:
  sfsgw-migrate up
  sfsgw-migrate status`)
}
