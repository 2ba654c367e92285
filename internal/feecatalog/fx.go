package feecatalog

import (
	"github.com/smallbiznis/schoolfee/internal/feecatalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feecatalog.service",
	fx.Provide(service.New),
)
