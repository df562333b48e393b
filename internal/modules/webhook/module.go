package webhook

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"signal_relay/internal/modules/config"
	dedupe "signal_relay/internal/modules/dedupe/service"
	relay "signal_relay/internal/modules/relay/service"
	"signal_relay/internal/modules/webhook/service"
	"signal_relay/internal/symbols"
	"signal_relay/pkg/logger"
)

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, h *service.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", h.HandleWebhook)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return err
			}
			logger.Info("webhook listening on %s", cfg.ListenAddr)
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("webhook",
		fx.Provide(
			func(engine *relay.Engine, store dedupe.Store, reg *symbols.Registry) *service.Handler {
				return service.NewHandler(engine, store, reg)
			},
		),
		fx.Invoke(RunHTTP),
	)
}
