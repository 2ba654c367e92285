package pdf

import (
	"github.com/smallbiznis/schoolfee/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	return &PDFProvider{LogoPath: cfg.PDFLogoPath}
}
