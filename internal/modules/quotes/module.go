package quotes

import (
	"context"

	capital "signal_relay/internal/modules/capital/service"
	"signal_relay/internal/modules/config"
	healthsvc "signal_relay/internal/modules/health/service"
	"signal_relay/internal/modules/quotes/service"
	"signal_relay/internal/symbols"

	"go.uber.org/fx"
)

// Module provides the streaming price cache. Disabled config yields a nil
// client; consumers treat that as "no quotes available".
func Module() fx.Option {
	return fx.Module("quotes",
		fx.Provide(
			func(cfg *config.Config, session *capital.Client, state *healthsvc.State) *service.Client {
				if !cfg.Quotes.Enabled {
					return nil
				}
				return service.NewClient(cfg.Quotes.StreamURL, cfg.Quotes.PingEvery, session, state)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, client *service.Client, reg *symbols.Registry) {
			if client == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go client.Run(ctx, reg.Epics())
					return nil
				},
			})
		}),
	)
}
