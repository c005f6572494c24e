package config

import (
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds process-level settings that never live in the YAML file.
type Env struct {
	ConfigPath string `env:"NEKO_CONFIG" envDefault:"config.yaml"`
	LogLevel   string `env:"NEKO_LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"NEKO_LOG_FORMAT" envDefault:"json"`
	StateDir   string `env:"NEKO_STATE_DIR" envDefault:"data"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (e Env) Level() slog.Level {
	switch strings.ToLower(e.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
