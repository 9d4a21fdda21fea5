// Package sandbox provides the demo database: its schema migrations, the
// catalog of its viewsets and a random fixture generator.
package sandbox

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/gnemet/viewsets"
	"github.com/gnemet/viewsets/database/pool"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/sqlstore"
)

//go:embed migrations
var migrationsFS embed.FS

//go:embed catalog.yaml
var catalogYAML []byte

// Catalog returns the demo catalog.
func Catalog() (*viewsets.Catalog, error) {
	return viewsets.ParseCatalog(catalogYAML)
}

// Migrate applies the pending schema migrations of the dialect of db.
func Migrate(db *pool.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	dialect := db.Dialect.Name()

	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case "postgres":
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case "sqlite":
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for %s", dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	logger.Info("schema migrated", "database", db.Name, "version", version, "dirty", dirty)
	return nil
}

// Viewsets builds the demo viewsets over db.
func Viewsets(db *pool.DB, lang string, logger *slog.Logger) ([]*viewsets.Viewset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat, err := Catalog()
	if err != nil {
		return nil, err
	}
	return cat.Viewsets(func(o viewsets.ObjectDef) (query.Store, error) {
		return db.Store(o.SQLTable(lang), sqlstore.WithLogger(logger))
	}, lang, logger)
}
