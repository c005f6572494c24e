package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/telemetry"
	"github.com/tjfontaine/polyglot-chat-gateway/pkg/nekobot"
)

// shutdownTimeout bounds Bot.Shutdown; detached replies get tasks.shutdown_grace of it.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot with the platforms from the config file",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	logger := newLogger(env, os.Stdout)
	slog.SetDefault(logger)

	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", env.ConfigPath, err)
	}
	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	bot, err := nekobot.New(
		nekobot.WithLogger(logger),
		nekobot.WithFileConfig(env.ConfigPath),
	)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return run(cmd.Context(), bot, logger)
}

// run starts bot and blocks until a signal arrives or a service fails.
func run(parent context.Context, bot *nekobot.Bot, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping bot")
	case <-bot.Done():
		if err := bot.Err(); err != nil {
			logger.Error("bot stopped", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bot.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("bot shutdown complete")
	return bot.Err()
}
