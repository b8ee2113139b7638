package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/clock"
	"github.com/smallbiznis/realvest/internal/config"
	"github.com/smallbiznis/realvest/internal/migration"
	"github.com/smallbiznis/realvest/internal/observability"
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
		migration.Module,

		// HTTP API only; background jobs run in apps/scheduler
		server.Domains,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
