package metricspush

import (
	"context"
	"time"

	"github.com/smallbiznis/realvest/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Provide(NewInventory),
	fx.Invoke(startWorker),
)

func startWorker(lc fx.Lifecycle, cfg config.Config, inv *Inventory, pusher Pusher, db *gorm.DB, log *zap.Logger) {
	if pusher == nil {
		return
	}
	log = log.Named("metrics.push")
	interval := cfg.MetricsPush.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker",
				zap.String("exporter", cfg.MetricsPush.Exporter),
				zap.Duration("interval", interval),
			)
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := pushOnce(ctx, inv, pusher, db); err != nil {
						log.Warn("metrics push failed", zap.Error(err))
					}
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func pushOnce(ctx context.Context, inv *Inventory, pusher Pusher, db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*defaultPushTimeout)
	defer cancel()
	if err := inv.Refresh(ctx, db); err != nil {
		return err
	}
	return pusher.Push(ctx, inv.Registry())
}
