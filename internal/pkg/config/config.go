package config

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Reply modes for llm_reply_mode.
const (
	ReplyModeActive  = "active"
	ReplyModePassive = "passive"
	ReplyModeAt      = "at"
	ReplyModeCommand = "command"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	WakePrefix                    []string     `koanf:"wake_prefix"`
	PrivateMessageNeedsWakePrefix bool         `koanf:"private_message_needs_wake_prefix"`
	IgnoreAtAll                   bool         `koanf:"ignore_at_all"`
	Waking                        WakingConfig `koanf:"waking"`
	LLMReplyMode                  string       `koanf:"llm_reply_mode"`

	Whitelist      WhitelistConfig      `koanf:"whitelist"`
	ContentSafety  ContentSafetyConfig  `koanf:"content_safety"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
	Session        SessionConfig        `koanf:"session"`
	ResultDecorate ResultDecorateConfig `koanf:"result_decorate"`
	Pipeline       PipelineConfig       `koanf:"pipeline"`

	LLM       LLMConfig        `koanf:"llm"`
	Platforms []PlatformConfig `koanf:"platforms"`
	Tasks     TasksConfig      `koanf:"tasks"`
	Janitor   JanitorConfig    `koanf:"janitor"`
	ACL       ACLConfig        `koanf:"acl"`
	Plugins   PluginsConfig    `koanf:"plugins"`
}

type ServerConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Port       int    `koanf:"port"`
	AdminToken string `koanf:"admin_token"` // bearer token for /api; empty disables the admin API
	// Ingress rate limit per client address, applied to the OneBot HTTP endpoints.
	IngressMaxRequests int           `koanf:"ingress_max_requests"`
	IngressWindow      time.Duration `koanf:"ingress_window"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// WakingConfig is the legacy prefix list, applied as an independent test.
type WakingConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Prefixes []string `koanf:"prefixes"`
}

type WhitelistConfig struct {
	Enabled bool     `koanf:"enabled"`
	Private []string `koanf:"private"`
	Group   []string `koanf:"group"`
}

type ContentSafetyConfig struct {
	Enabled        bool     `koanf:"enabled"`
	SensitiveWords []string `koanf:"sensitive_words"`
}

type RateLimitConfig struct {
	Enabled     bool `koanf:"enabled"`
	MaxMessages int  `koanf:"max_messages"`
	TimeWindow  int  `koanf:"time_window"` // seconds
}

// Window returns the rate limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.TimeWindow) * time.Second
}

type SessionConfig struct {
	Enabled         bool     `koanf:"enabled"`
	EnabledSessions []string `koanf:"enabled_sessions"`
}

type ResultDecorateConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Prefix    string `koanf:"prefix"`
	Suffix    string `koanf:"suffix"`
	MaxLength int    `koanf:"max_length"` // runes, 0 = unlimited
}

type PipelineConfig struct {
	Stages   []string        `koanf:"stages"` // empty = default order
	Webhooks []WebhookConfig `koanf:"webhooks"`
}

// WebhookConfig declares an external gate. It runs wherever its name appears
// in Pipeline.Stages.
type WebhookConfig struct {
	Name         string            `koanf:"name"`
	URL          string            `koanf:"url"`
	Timeout      time.Duration     `koanf:"timeout"`
	OnError      string            `koanf:"on_error"` // allow or deny (default deny)
	Retries      int               `koanf:"retries"`
	Headers      map[string]string `koanf:"headers"`
	BlockPrivate bool              `koanf:"block_private"`
}

type LLMConfig struct {
	Providers    []ProviderConfig `koanf:"providers"`
	Context      ContextConfig    `koanf:"context"`
	Timeout      time.Duration    `koanf:"timeout"`
	SystemPrompt string           `koanf:"system_prompt"`
}

type ProviderConfig struct {
	Name        string  `koanf:"name"`
	Type        string  `koanf:"type"` // openai, anthropic, echo
	Enabled     bool    `koanf:"enabled"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"` // Custom API endpoint
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

type ContextConfig struct {
	Strategy    string `koanf:"strategy"` // none, fifo, lru, summary, chat_summary
	MaxMessages int    `koanf:"max_messages"`
	MaxTokens   int    `koanf:"max_tokens"`
	CacheSize   int    `koanf:"cache_size"`
	Model       string `koanf:"model"` // tokenizer model
}

type PlatformConfig struct {
	Name        string `koanf:"name"`
	Type        string `koanf:"type"` // onebot, discord, console
	Enabled     bool   `koanf:"enabled"`
	URL         string `koanf:"url"`          // onebot: ws(s) forward socket or http(s) API
	AccessToken string `koanf:"access_token"` // onebot
	Token       string `koanf:"token"`        // discord bot token
	SelfID      string `koanf:"self_id"`
	HistoryFile string `koanf:"history_file"` // console
	// CommandPrefix marks a message as a command. Empty means "/".
	CommandPrefix string `koanf:"command_prefix"`
}

type TasksConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`
}

type JanitorConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Schedule         string        `koanf:"schedule"` // cron expression
	LimiterIdle      time.Duration `koanf:"limiter_idle"`
	HistoryRetention time.Duration `koanf:"history_retention"`
}

type PluginsConfig struct {
	Disabled []string `koanf:"disabled"` // plugins registered but not enabled at startup
}

type ACLConfig struct {
	Path   string   `koanf:"path"`
	Admins []string `koanf:"admins"`
}

// WakePrefixes returns the configured wake prefixes, or the defaults.
func (c *Config) WakePrefixes() []string {
	if len(c.WakePrefix) == 0 {
		return []string{"/", "."}
	}
	return c.WakePrefix
}

// CommandPrefix returns the command prefix configured for the named platform,
// or "/" when the platform is unknown or leaves it unset.
func (c *Config) CommandPrefix(platform string) string {
	if p, ok := c.Platform(platform); ok && p.CommandPrefix != "" {
		return p.CommandPrefix
	}
	return "/"
}

// ReplyMode returns llm_reply_mode, treating empty and unknown values as active.
func (c *Config) ReplyMode() string {
	switch c.LLMReplyMode {
	case ReplyModePassive, ReplyModeAt, ReplyModeCommand:
		return c.LLMReplyMode
	default:
		return ReplyModeActive
	}
}

// EnabledProvider returns the first enabled provider configuration.
func (c *Config) EnabledProvider() (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Enabled {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Platform looks up a platform configuration by name.
func (c *Config) Platform(name string) (PlatformConfig, bool) {
	for _, p := range c.Platforms {
		if p.Name == name {
			return p, true
		}
	}
	return PlatformConfig{}, false
}

// Clone returns a deep copy so readers never share slices with the loader.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.WakePrefix = slices.Clone(c.WakePrefix)
	out.Waking.Prefixes = slices.Clone(c.Waking.Prefixes)
	out.Whitelist.Private = slices.Clone(c.Whitelist.Private)
	out.Whitelist.Group = slices.Clone(c.Whitelist.Group)
	out.ContentSafety.SensitiveWords = slices.Clone(c.ContentSafety.SensitiveWords)
	out.Session.EnabledSessions = slices.Clone(c.Session.EnabledSessions)
	out.Pipeline.Stages = slices.Clone(c.Pipeline.Stages)
	out.Pipeline.Webhooks = slices.Clone(c.Pipeline.Webhooks)
	for i := range out.Pipeline.Webhooks {
		out.Pipeline.Webhooks[i].Headers = maps.Clone(c.Pipeline.Webhooks[i].Headers)
	}
	out.LLM.Providers = slices.Clone(c.LLM.Providers)
	out.Platforms = slices.Clone(c.Platforms)
	out.ACL.Admins = slices.Clone(c.ACL.Admins)
	out.Plugins.Disabled = slices.Clone(c.Plugins.Disabled)
	return &out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// defaults mirrors the values the bot ships with.
var defaults = map[string]any{
	"server.port":                       8080,
	"server.ingress_max_requests":       120,
	"server.ingress_window":             "1m",
	"storage.type":                      "memory",
	"storage.sqlite.path":               "data/history.db",
	"telemetry.service_name":            "nekobot",
	"wake_prefix":                       []string{"/", "."},
	"private_message_needs_wake_prefix": false,
	"llm_reply_mode":                    ReplyModeActive,
	"rate_limit.max_messages":           10,
	"rate_limit.time_window":            60,
	"llm.timeout":                       "60s",
	"llm.context.strategy":              "fifo",
	"llm.context.max_messages":          20,
	"llm.context.max_tokens":            4096,
	"llm.context.cache_size":            256,
	"tasks.max_concurrent":              8,
	"tasks.shutdown_grace":              "10s",
	"janitor.schedule":                  "*/5 * * * *",
	"janitor.limiter_idle":              "10m",
	"janitor.history_retention":         "168h",
	"acl.path":                          "data/acl.yaml",
}

// Load reads the YAML file at path (missing is fine), applies NEKO_ environment
// overrides and fills in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("NEKO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "NEKO_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	for i := range cfg.LLM.Providers {
		cfg.LLM.Providers[i].APIKey = substituteEnvVars(cfg.LLM.Providers[i].APIKey)
		cfg.LLM.Providers[i].BaseURL = substituteEnvVars(cfg.LLM.Providers[i].BaseURL)
	}
	for i := range cfg.Platforms {
		cfg.Platforms[i].Token = substituteEnvVars(cfg.Platforms[i].Token)
		cfg.Platforms[i].AccessToken = substituteEnvVars(cfg.Platforms[i].AccessToken)
	}

	return &cfg, nil
}

// Default returns the built-in defaults without reading a file or the
// environment.
func Default() *Config {
	k := koanf.New(".")
	for key, value := range defaults {
		_ = k.Set(key, value)
	}
	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
