// Command dispatchd runs the notification dispatcher with its HTTP API.
//
// Settings come from the environment (and an optional .env file). Channel
// and notification type definitions are read from DISPATCH_CHANNELS_FILE,
// templates from DISPATCH_TEMPLATES_FILE. Without them the service delivers
// the built-in account templates over email and the in-app inbox.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/dispatchkit/pkg/api"
	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

const serviceName = "dispatchd"

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithDispatchContext(),
		logger.WithContextExtractors(api.LogExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "dispatchd stopped with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
	log.Info("dispatchd stopped")
}
