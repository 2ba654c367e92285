// Command scheduler runs the overdue sweep without the HTTP API.
package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolfee/internal/audit"
	"github.com/smallbiznis/schoolfee/internal/clock"
	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/smallbiznis/schoolfee/internal/feecatalog"
	"github.com/smallbiznis/schoolfee/internal/feecompute"
	"github.com/smallbiznis/schoolfee/internal/invoice"
	"github.com/smallbiznis/schoolfee/internal/notification"
	"github.com/smallbiznis/schoolfee/internal/observability"
	"github.com/smallbiznis/schoolfee/internal/preference"
	"github.com/smallbiznis/schoolfee/internal/providers"
	"github.com/smallbiznis/schoolfee/internal/ratelimit"
	"github.com/smallbiznis/schoolfee/internal/scheduler"
	"github.com/smallbiznis/schoolfee/internal/school"
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

		// Domain services required by the overdue sweep
		scheduler.Module,
		invoice.Module,
		feecompute.Module,
		feecatalog.Module,
		preference.Module,
		school.Module,
		audit.Module,
		notification.Module,
		providers.Module,
		ratelimit.Module,

		// No server module!
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
