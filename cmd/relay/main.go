package main

import (
	"context"
	"log"

	"signal_relay/internal/modules/capital"
	"signal_relay/internal/modules/config"
	"signal_relay/internal/modules/dedupe"
	"signal_relay/internal/modules/health"
	"signal_relay/internal/modules/quotes"
	"signal_relay/internal/modules/relay"
	"signal_relay/internal/modules/webhook"
	"signal_relay/internal/notify"
	"signal_relay/internal/symbols"
	"signal_relay/pkg/logger"
	"signal_relay/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName("signal-relay")
	tracing.SetServiceName("signal-relay")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			func(cfg *config.Config) (*symbols.Registry, error) {
				return symbols.Load(cfg.SymbolsFile)
			},
			func(cfg *config.Config) (notify.Notifier, error) {
				if cfg.Telegram.Token == "" {
					return notify.Noop{}, nil
				}
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			},
		),
		config.Module(),
		capital.Module(),
		dedupe.Module(),
		health.Module(),
		quotes.Module(),
		relay.Module(),
		webhook.Module(),
		fx.Invoke(initTracing),
	)
	app.Run()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Jaeger.Host == "" {
		return nil
	}
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Jaeger.Host,
		Port: cfg.Jaeger.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}
