package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"github.com/smallbiznis/shopfloor/internal/config"
	"github.com/smallbiznis/shopfloor/internal/migration"
	"github.com/smallbiznis/shopfloor/internal/observability"
	"github.com/smallbiznis/shopfloor/internal/scheduler"
	"github.com/smallbiznis/shopfloor/internal/seed"
	"github.com/smallbiznis/shopfloor/internal/server"
	"github.com/smallbiznis/shopfloor/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// HTTP server pulls in the domain modules
		server.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
