package property

import (
	"github.com/smallbiznis/realvest/internal/property/repository"
	"github.com/smallbiznis/realvest/internal/property/service"
	"go.uber.org/fx"
)

var Module = fx.Module("property.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
