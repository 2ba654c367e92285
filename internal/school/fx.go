package school

import (
	"github.com/smallbiznis/schoolfee/internal/school/repository"
	"github.com/smallbiznis/schoolfee/internal/school/service"
	"go.uber.org/fx"
)

var Module = fx.Module("school.directory",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
