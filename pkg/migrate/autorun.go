package migrate

import (
	"context"
	"fmt"

	"github.com/dcastano/repairhub-backend/pkg/config"
	"github.com/dcastano/repairhub-backend/pkg/db"
	"github.com/dcastano/repairhub-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations at boot when the auto-migrate
// feature flag is set. Production deploys run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.Features.AutoMigrate {
		return nil
	}
	if client == nil {
		return fmt.Errorf("db client is required")
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("get sql db handle: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "auto-migrate enabled, applying pending migrations")
	}
	return Run(ctx, sqlDB, DefaultDir, "up")
}
