package ratelimit

import (
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewClient),
	fx.Provide(NewGuard),
	fx.Provide(func(g *Guard) pipelinedomain.OwnerLock {
		if g == nil {
			return nil
		}
		return g
	}),
)
