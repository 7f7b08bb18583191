package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// MaybeRunDev brings a local Postgres schema up to date at boot. It does
// nothing outside dev, with the auto-migrate flag off, or on SQLite, whose
// schema comes from AutoMigrate in tests. Deployed schemas move only
// through the migrate command.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	switch {
	case !cfg.App.IsDev():
		return nil
	case !cfg.FeatureFlags.AutoMigrate, cfg.DB.IsSQLite():
		logg.Debug(ctx, "dev auto-migrate skipped")
		return nil
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	runner, err := NewRunner(pool, nil)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	versions := make([]int64, len(applied))
	for i, a := range applied {
		versions[i] = a.Version
	}
	logg.Info(logg.WithField(ctx, "versions", versions), "dev auto-migrate finished")
	return nil
}
