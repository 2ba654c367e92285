package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/smallbiznis/schoolfee/internal/migration"
	"github.com/smallbiznis/schoolfee/internal/observability"
	"github.com/smallbiznis/schoolfee/internal/scheduler"
	"github.com/smallbiznis/schoolfee/internal/server"
	"github.com/smallbiznis/schoolfee/pkg/db"
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

		// HTTP API and the domain services it composes
		server.Module,

		// Background jobs
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}
