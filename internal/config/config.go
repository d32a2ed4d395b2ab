package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/polyglot-context/internal/tokens"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. CTX_SERVER__PORT.
const EnvPrefix = "CTX_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Tokenizer TokenizerConfig `koanf:"tokenizer"`
	Storage   StorageConfig   `koanf:"storage"`
	Budget    BudgetConfig    `koanf:"budget"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "30s"
}

type TokenizerConfig struct {
	Encoding  string `koanf:"encoding"`   // cl100k_base, o200k_base, p50k_base, r50k_base
	CacheSize int    `koanf:"cache_size"` // LRU entries; 0 disables the cache
	Strict    bool   `koanf:"strict"`     // Fail requests on items that cannot be encoded
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"` // Export spans to stderr
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// BudgetConfig controls context window checks.
type BudgetConfig struct {
	// Reserve is added to every prompt total to leave room for the completion.
	Reserve int `koanf:"reserve"`
	// ContextWindows overrides or extends the built-in window table.
	// A list is used because model prefixes contain the koanf delimiter.
	ContextWindows []WindowOverride `koanf:"context_windows"`
}

// WindowOverride sets the context window for models starting with Prefix.
// Tokens <= 0 removes the built-in entry.
type WindowOverride struct {
	Prefix string `koanf:"prefix"`
	Tokens int    `koanf:"tokens"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath (if present) and environment overrides.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads path (if present) and environment overrides.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// A missing file is fine; env vars and defaults still apply.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "30s",
		"tokenizer.encoding":     string(tokens.DefaultEncoding),
		"tokenizer.cache_size":   tokens.DefaultCacheSize,
		"storage.type":           "memory",
		"storage.sqlite.path":    "./data/context.db",
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

	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that koanf cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
			return fmt.Errorf("server.request_timeout: %w", err)
		}
	}
	if _, err := tokens.ParseEncoding(c.Tokenizer.Encoding); err != nil {
		return fmt.Errorf("tokenizer.encoding: %w", err)
	}
	switch c.Storage.Type {
	case "memory", "none":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	for i, o := range c.Budget.ContextWindows {
		if o.Prefix == "" {
			return fmt.Errorf("budget.context_windows[%d]: prefix is required", i)
		}
	}
	if c.Budget.Reserve < 0 {
		return fmt.Errorf("budget.reserve must not be negative")
	}
	return nil
}

// RequestTimeout returns the parsed request timeout. Zero disables it.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// Windows returns the built-in context window table with configured overrides applied.
func (c *Config) Windows() tokens.Windows {
	overrides := make(map[string]int, len(c.Budget.ContextWindows))
	for _, o := range c.Budget.ContextWindows {
		overrides[o.Prefix] = o.Tokens
	}
	return tokens.DefaultWindows().WithOverrides(overrides)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
