package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/db/migrations"
)

func main() {
	// Define command-line flags
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)

	migrateDB := migrateCmd.String("db", "data/wagerline.db", "Path to SQLite database")
	statusDB := statusCmd.String("db", "data/wagerline.db", "Path to SQLite database")

	// Show usage if no arguments provided
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(*migrateDB)

	case "status":
		statusCmd.Parse(os.Args[2:])
		showStatus(*statusDB)

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migration migrate [-db PATH]  - Apply pending store migrations")
	fmt.Println("  migration status [-db PATH]   - List applied and pending migrations")
	fmt.Println("  migration help                - Show this help")
}

func openDB(dbPath string) *sql.DB {
	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Error creating database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	return db
}

func applyMigrations(dbPath string) {
	db := openDB(dbPath)
	defer db.Close()

	logger := logging.NewTextLogger(os.Stdout, logging.INFO)
	if err := migrations.NewMigrator(db, migrations.Files(), logger).MigrateUp(); err != nil {
		log.Fatalf("Error applying migrations: %v", err)
	}

	fmt.Println("Migrations applied successfully!")
}

func showStatus(dbPath string) {
	db := openDB(dbPath)
	defer db.Close()

	states, err := migrations.NewMigrator(db, migrations.Files(), nil).Status()
	if err != nil {
		log.Fatalf("Error reading migration status: %v", err)
	}

	for _, state := range states {
		label := "pending"
		if state.Applied {
			label = "applied"
		}
		fmt.Printf("%s  %-8s %s\n", state.Version, label, state.Description)
	}
}
