// Command api serves the HTTP API without background jobs. Run the
// scheduler worker alongside it.
package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/smallbiznis/schoolfee/internal/migration"
	"github.com/smallbiznis/schoolfee/internal/observability"
	"github.com/smallbiznis/schoolfee/internal/server"
	"github.com/smallbiznis/schoolfee/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
