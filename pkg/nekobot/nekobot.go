// Package nekobot provides the public API for embedding the bot.
// This is the stable API for external consumers.
package nekobot

import (
	"github.com/tjfontaine/polyglot-chat-gateway/internal/runtime"
)

// Bot is the main entry point for running NekoBot.
// See internal/runtime.Bot for full documentation.
type Bot = runtime.Bot

// Option is a functional option for configuring a Bot.
type Option = runtime.Option

// New creates a new Bot with the given options.
// Example:
//
//	bot, err := nekobot.New(
//	    nekobot.WithFileConfig("config.yaml"),
//	    nekobot.WithSQLite("./data/history.db"),
//	)
var New = runtime.New

// ErrAlreadyStarted is returned by a second call to Bot.Start.
var ErrAlreadyStarted = runtime.ErrAlreadyStarted

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithHistoryStore  = runtime.WithHistoryStore

	// Platforms
	WithPlatform               = runtime.WithPlatform
	WithPlatformFactory        = runtime.WithPlatformFactory
	WithoutConfiguredPlatforms = runtime.WithoutConfiguredPlatforms

	// Extensions
	WithPlugin = runtime.WithPlugin
	WithStage  = runtime.WithStage

	// Advanced options
	WithLogger        = runtime.WithLogger
	WithQualityPolicy = runtime.WithQualityPolicy
	WithoutServer     = runtime.WithoutServer
)
