package main

import (
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	taskqueue "cloudfund-settlement/pkg/asynq"
	"cloudfund-settlement/internal/httpapi"
	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/config"
	"cloudfund-settlement/pkg/db"
	"cloudfund-settlement/pkg/hashistack/secretmanager"
	"cloudfund-settlement/pkg/health"
	"cloudfund-settlement/pkg/logger"
	"cloudfund-settlement/pkg/redis"
	"cloudfund-settlement/pkg/sequence"
	"cloudfund-settlement/pkg/server"
	"cloudfund-settlement/services/balance"
	"cloudfund-settlement/services/campaign"
	"cloudfund-settlement/services/settlement"
	"cloudfund-settlement/services/sweeper"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		taskqueue.Client,
		sequence.Module,
		chainrpc.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		campaign.Module,
		balance.Module,
		settlement.Module,
		sweeper.Module,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if os.Getenv("VAULT_ADDR") != "" {
		opts = append([]fx.Option{secretmanager.Module}, opts...)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
