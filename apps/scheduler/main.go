package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/config"
	"github.com/smallbiznis/realvest/internal/metricspush"
	"github.com/smallbiznis/realvest/internal/observability"
	"github.com/smallbiznis/realvest/internal/scheduler"
	"github.com/smallbiznis/realvest/internal/server"
	"github.com/smallbiznis/realvest/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Domains,
		scheduler.Module,
		metricspush.Module,
	)
	app.Run()
}

// RegisterSnowflake uses its own node so IDs never collide with the API.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
