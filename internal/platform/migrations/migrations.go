// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Source returns the embedded migration source.
func Source() (source.Driver, error) {
	return iofs.New(files, "sql")
}

// The migrate instance owns its own connection; closing it never touches the
// service pool.
func open(dsn string) (*migrate.Migrate, error) {
	if dsn == "" {
		return nil, errors.New("database dsn not configured")
	}
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate, err error) error {
	srcErr, dbErr := m.Close()
	return errors.Join(err, srcErr, dbErr)
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func Up(dsn string) error {
	m, err := open(dsn)
	if err != nil {
		return err
	}
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("migrate up: %w", err)
	}
	return closeMigrate(m, err)
}

// Down reverts every migration.
func Down(dsn string) error {
	m, err := open(dsn)
	if err != nil {
		return err
	}
	err = m.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("migrate down: %w", err)
	}
	return closeMigrate(m, err)
}

// Version reports the applied schema version. applied is false on an empty
// database.
func Version(dsn string) (version uint, dirty bool, applied bool, err error) {
	m, err := open(dsn)
	if err != nil {
		return 0, false, false, err
	}
	version, dirty, err = m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		err = nil
	case err != nil:
		err = fmt.Errorf("migrate version: %w", err)
	default:
		applied = true
	}
	return version, dirty, applied, closeMigrate(m, err)
}
