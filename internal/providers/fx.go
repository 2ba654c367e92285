package providers

import (
	"github.com/smallbiznis/schoolfee/internal/providers/email"
	"github.com/smallbiznis/schoolfee/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
