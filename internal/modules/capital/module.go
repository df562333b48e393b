package capital

import (
	"signal_relay/internal/modules/capital/service"
	"signal_relay/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("capital",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(
					cfg.Broker.BaseURL,
					cfg.Broker.APIKey,
					cfg.Broker.Identifier,
					cfg.Broker.Password,
					cfg.Broker.Timeout,
				)
			},
		),
	)
}
