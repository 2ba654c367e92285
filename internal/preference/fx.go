package preference

import (
	"github.com/smallbiznis/schoolfee/internal/preference/repository"
	"github.com/smallbiznis/schoolfee/internal/preference/service"
	"go.uber.org/fx"
)

var Module = fx.Module("preference.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
