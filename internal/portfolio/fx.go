package portfolio

import (
	"github.com/smallbiznis/realvest/internal/portfolio/repository"
	"github.com/smallbiznis/realvest/internal/portfolio/service"
	"go.uber.org/fx"
)

var Module = fx.Module("portfolio.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
