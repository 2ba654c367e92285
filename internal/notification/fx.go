package notification

import (
	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/smallbiznis/schoolfee/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
)

func New(cfg config.Config, provider email.Provider, log *zap.Logger) (Notifier, error) {
	if !cfg.Email.Enabled() {
		return NoopNotifier{}, nil
	}
	return NewEmailNotifier(provider, log)
}
