package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "nekobot",
	Short: "Chat bot that runs platform messages through a staged pipeline",
	Long: "NekoBot connects to chat platforms (OneBot, Discord, a local console),\n" +
		"runs every event through an onion-model stage pipeline and answers\n" +
		"with commands, plugins or an LLM.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "config file (default $NEKO_CONFIG or config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.Version = version
}

// loadEnv reads process settings and applies the --config override.
func loadEnv() (config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, fmt.Errorf("read environment: %w", err)
	}
	if rootFlags.configPath != "" {
		env.ConfigPath = rootFlags.configPath
	}
	return env, nil
}

// newLogger builds the process logger from NEKO_LOG_LEVEL and NEKO_LOG_FORMAT.
func newLogger(env config.Env, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: env.Level()}
	var handler slog.Handler
	if strings.EqualFold(env.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
