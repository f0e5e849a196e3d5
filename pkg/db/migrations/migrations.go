package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/fadedpez/wagerline/internal/logging"
)

//go:embed sql/*.sql
var embedded embed.FS

// Files returns the schema migrations shipped with the binary
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrator handles database migrations
type Migrator struct {
	db     *sql.DB
	source fs.FS
	logger *logging.Logger
}

// NewMigrator creates a new migrator reading .sql files from source
func NewMigrator(db *sql.DB, source fs.FS, logger *logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Migrator{
		db:     db,
		source: source,
		logger: logger.Component("migrations"),
	}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version TEXT NOT NULL,
			description TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// GetAppliedMigrations returns a map of already applied migrations
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// LoadMigrations loads all migration files from the source
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(m.source, entry.Name())
		if err != nil {
			return nil, err
		}

		// Parse version and description from filename (e.g., "001_store_nodes.sql")
		parts := strings.SplitN(strings.TrimSuffix(entry.Name(), ".sql"), "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid migration filename: %s", entry.Name())
		}

		migrations = append(migrations, Migration{
			Version:     parts[0],
			Description: strings.ReplaceAll(parts[1], "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Exec(migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("error applying migration %s: %w", migration.Version, err)
	}

	_, err = tx.Exec(
		"INSERT INTO migrations (version, description) VALUES (?, ?)",
		migration.Version,
		migration.Description,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error recording migration %s: %w", migration.Version, err)
	}

	return tx.Commit()
}

// State pairs a migration with whether it has been applied
type State struct {
	Migration
	Applied bool
}

// Status lists every shipped migration in version order with its state
func (m *Migrator) Status() ([]State, error) {
	const op = "migrations.Status"

	if err := m.Initialize(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	states := make([]State, len(migrations))
	for i, migration := range migrations {
		states[i] = State{Migration: migration, Applied: applied[migration.Version]}
	}
	return states, nil
}

// MigrateUp applies all pending migrations in version order
func (m *Migrator) MigrateUp() error {
	const op = "migrations.MigrateUp"

	states, err := m.Status()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, state := range states {
		if state.Applied {
			m.logger.Debug("migration already applied", "version", state.Version)
			continue
		}

		if err := m.ApplyMigration(state.Migration); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		m.logger.Info("migration applied", "version", state.Version, "description", state.Description)
	}

	return nil
}
