package feecompute

import (
	"github.com/smallbiznis/schoolfee/internal/feecompute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feecompute.service",
	fx.Provide(service.New),
)
