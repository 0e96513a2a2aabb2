package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/egplabs/gateway/internal/apikey"
	"github.com/egplabs/gateway/internal/audit"
	"github.com/egplabs/gateway/internal/auth"
	"github.com/egplabs/gateway/internal/clock"
	"github.com/egplabs/gateway/internal/config"
	"github.com/egplabs/gateway/internal/logger"
	"github.com/egplabs/gateway/internal/migration"
	"github.com/egplabs/gateway/internal/observability/metrics"
	"github.com/egplabs/gateway/internal/ratelimit"
	"github.com/egplabs/gateway/internal/risk"
	"github.com/egplabs/gateway/internal/server"
	"github.com/egplabs/gateway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		// Admission engine
		ratelimit.Module,
		audit.Module,
		risk.Module,
		apikey.Module,
		auth.Module,

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
