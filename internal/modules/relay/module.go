package relay

import (
	capital "signal_relay/internal/modules/capital/service"
	"signal_relay/internal/modules/config"
	quotes "signal_relay/internal/modules/quotes/service"
	"signal_relay/internal/modules/relay/service"
	"signal_relay/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(
			func(cfg *config.Config, client *capital.Client, q *quotes.Client, n notify.Notifier) *service.Engine {
				var src service.QuoteSource
				if q != nil {
					src = q
				}
				return service.NewEngine(client, src, n, service.Settings{
					ForceOpen:       cfg.Broker.ForceOpen,
					CloseMode:       cfg.Broker.CloseMode,
					StopAmendAbs:    cfg.StopAmendAbs,
					StopAmendMinPct: cfg.StopAmendMinPct,
				})
			},
		),
	)
}
