package migration

import (
	"github.com/smallbiznis/shopfloor/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}

		switch cfg.DBType {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		case "sqlite":
			return ApplySQLiteSchema(conn)
		default:
			log.Warn("auto migration not available for database type; schema must be provisioned externally",
				zap.String("type", cfg.DBType),
			)
			return nil
		}
	}),
)
