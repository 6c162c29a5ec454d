package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/okian/pairank/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending migrations. It is a no-op at the latest version.
func (s *Store) MigrateUp(ctx context.Context) error {
	m, err := s.newMigrate(ctx)
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: up: %w", ErrMigrate, err)
	}
	return nil
}

// MigrateVersion returns the applied schema version; 0 when none.
func (s *Store) MigrateVersion(ctx context.Context) (uint, bool, error) {
	m, err := s.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate(ctx context.Context) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: source: %w", ErrMigrate, err)
	}
	driver, err := msqlite.WithInstance(s.db, &msqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: driver: %w", ErrMigrate, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	m.Log = &migrateLogger{ctx: ctx, logger: s.logger}
	return m, nil
}

// migrateLogger implements migrate.Logger on top of our logger.
type migrateLogger struct {
	ctx    context.Context
	logger logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
