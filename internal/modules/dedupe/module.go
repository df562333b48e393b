package dedupe

import (
	"context"
	"fmt"

	"signal_relay/internal/modules/config"
	"signal_relay/internal/modules/dedupe/service"
	"signal_relay/internal/modules/dedupe/service/file"
	"signal_relay/internal/modules/dedupe/service/pg"
	"signal_relay/pkg/db"
	"signal_relay/pkg/logger"

	"go.uber.org/fx"
)

// Module provides the dedup Store: postgres when a DSN is configured,
// otherwise the JSON file store.
func Module() fx.Option {
	return fx.Module("dedupe",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (service.Store, error) {
				if cfg.DB == "" {
					logger.Info("dedup store: file %s", cfg.StorePath)
					return file.NewStore(cfg.StorePath, cfg.Retention), nil
				}

				pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
				if err != nil {
					return nil, fmt.Errorf("failed to create pool: %w", err)
				}
				if err = pool.Ping(ctx); err != nil {
					return nil, err
				}
				mgr := db.NewPgTxManager(pool)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						mgr.Close()
						return nil
					},
				})
				logger.Info("dedup store: postgres")
				return pg.NewStore(mgr, cfg.Retention), nil
			},
		),
	)
}
