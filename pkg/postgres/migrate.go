package postgres

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/config"
)

// Migrate applies all pending up-migrations found in dir.
func Migrate(cfg config.PostgresConfig, dir string) error {
	m, err := migrate.New("file://"+dir, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Error("failed to close migration instance", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	slog.Info("migrations applied", "dir", dir)
	return nil
}
