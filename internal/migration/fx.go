package migration

import (
	"context"

	"github.com/smallbiznis/realvest/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		created, err := seed.EnsureDealStages(context.Background(), conn)
		if err != nil {
			return err
		}
		if created > 0 {
			log.Info("seeded deal stages", zap.Int("count", created))
		}
		return nil
	}),
)
