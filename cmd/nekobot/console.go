package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform/console"
	"github.com/tjfontaine/polyglot-chat-gateway/pkg/nekobot"
)

var consoleFlags struct {
	noHistory bool
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot from the terminal",
	Long: "Runs the pipeline against a local console platform only. Configured\n" +
		"platforms and the HTTP server are not started. Type 'exit' to quit.",
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleFlags.noHistory, "no-history", false, "do not persist readline history")
}

func runConsole(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	// Logs go to stderr so they do not interleave with the prompt on stdout.
	logger := newLogger(env, os.Stderr)

	platformCfg := config.PlatformConfig{Name: "console", Type: console.PlatformType, Enabled: true}
	if !consoleFlags.noHistory {
		platformCfg.HistoryFile = filepath.Join(env.StateDir, "console_history")
		if err := os.MkdirAll(env.StateDir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	adapter := console.New(platformCfg, logger,
		console.WithIO(os.Stdin, cmd.OutOrStdout()),
		console.WithOnExit(cancel),
	)

	bot, err := nekobot.New(
		nekobot.WithLogger(logger),
		nekobot.WithFileConfig(env.ConfigPath),
		nekobot.WithoutConfiguredPlatforms(),
		nekobot.WithPlatform(adapter),
		nekobot.WithoutServer(),
	)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	return run(ctx, bot, logger)
}
