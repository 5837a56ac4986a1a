package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"busbooking/pkg/config"
)

// Migrate brings the booking schema up to the newest file under migrationsPath
// (file://migrations) and returns the version it ends on. A schema left dirty by a
// failed run is reported rather than retried; it needs a manual force.
func Migrate(migrationsPath string, cfg config.Config) (uint, error) {
	m, err := migrate.New(migrationsPath, migrationConnString(cfg))
	if err != nil {
		return 0, err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return uint(dirty.Version), fmt.Errorf("schema version %d is dirty; fix it and force the version before retrying", dirty.Version)
		}
		return 0, err
	}

	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	return version, err
}
