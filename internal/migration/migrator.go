// Copyright 2024 aicarousel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package migration manages the gateway's SQLite schema through linear,
numbered SQL files embedded at build time and applied with
golang-migrate.
*/
package migration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"database/sql"
)

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

const migrationsPath = "migrations/sqlite"

// MigrationStatus describes a single numbered migration and whether it
// has been applied to the current database.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo summarizes the migration state of the database.
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config configures a Migrator against a SQLite database file.
type Config struct {
	// DatabasePath is the filesystem path to the SQLite database file.
	DatabasePath string

	// TableName is the name of the table golang-migrate uses to track
	// applied versions. Defaults to "aic_schema_migrations".
	TableName string
}

// Migrator applies and inspects schema migrations.
type Migrator interface {
	Up() error
	Down() error
	DownAll() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
	Status() ([]MigrationStatus, error)
	Info() (*MigrationInfo, error)
	Close() error
}

// DefaultMigrator is the golang-migrate-backed Migrator implementation.
type DefaultMigrator struct {
	config  Config
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMigrator opens the database at cfg.DatabasePath and prepares a
// Migrator bound to the embedded SQLite migration set.
func NewMigrator(cfg Config) (*DefaultMigrator, error) {
	if cfg.DatabasePath == "" {
		return nil, errors.New("migration: database path is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "aic_schema_migrations"
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_foreign_keys=on", cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("migration: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: ping database: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: cfg.TableName})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: create database driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqliteFS, migrationsPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: create migrate instance: %w", err)
	}

	return &DefaultMigrator{config: cfg, migrate: m, db: db}, nil
}

func (m *DefaultMigrator) Up() error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) DownAll() error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down all: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Steps(n int) error {
	if err := m.migrate.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: steps: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Force(version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration: force: %w", err)
	}
	return nil
}

func (m *DefaultMigrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("migration: version: %w", err)
	}
	return version, dirty, nil
}

func (m *DefaultMigrator) Status() ([]MigrationStatus, error) {
	currentVersion, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}

	migrations, err := m.availableMigrations()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: mig.version <= currentVersion,
			Dirty:   dirty && mig.version == currentVersion,
		})
	}
	return statuses, nil
}

func (m *DefaultMigrator) Info() (*MigrationInfo, error) {
	currentVersion, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}

	migrations, err := m.availableMigrations()
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.version <= currentVersion {
			applied++
		}
	}

	return &MigrationInfo{
		CurrentVersion:    currentVersion,
		Dirty:             dirty,
		TotalMigrations:   len(migrations),
		AppliedMigrations: applied,
		PendingMigrations: len(migrations) - applied,
	}, nil
}

func (m *DefaultMigrator) Close() error {
	var errs []error
	if m.migrate != nil {
		sourceErr, dbErr := m.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, sourceErr)
		}
		if dbErr != nil {
			errs = append(errs, dbErr)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("migration: close: %v", errs)
	}
	return nil
}

type migrationFile struct {
	version uint
	name    string
}

func (m *DefaultMigrator) availableMigrations() ([]migrationFile, error) {
	entries, err := fs.ReadDir(sqliteFS, migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("migration: read migrations directory: %w", err)
	}

	seen := make(map[uint]bool)
	var migrations []migrationFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}

		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		if seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true

		migrations = append(migrations, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
