package db

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/goodpartydata/voterflow/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EnsureSchema brings the raw and audit tables into existence. Migrations
// are CREATE IF NOT EXISTS only, so calling this on every run is safe and
// never touches existing data.
func EnsureSchema(cfg Config) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: reading embedded migrations: %v", domain.ErrSchemaInit, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL("pgx5"))
	if err != nil {
		return fmt.Errorf("%w: creating migrator: %v", domain.ErrSchemaInit, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Printf("Failed to close migrator: source=%v database=%v", srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: applying migrations: %v", domain.ErrSchemaInit, err)
	}

	return nil
}
