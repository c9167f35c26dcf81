package migration

import (
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if !cfg.SeedDefaultTenant {
			return nil
		}
		if cfg.DefaultTenantID != 0 {
			return seed.EnsureDefaultTenantWithID(conn, log, cfg.DefaultTenantID)
		}
		return seed.EnsureDefaultTenant(conn, log)
	}),
)
