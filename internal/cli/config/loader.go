package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	sharedcfg "github.com/leapstack-labs/testide/internal/config"
)

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// EnvPrefix is the prefix of environment variables read into the config.
const EnvPrefix = "TESTIDE_"

// sections are the nested config keys. Env vars and flags use "_" or "-"
// where the config uses ".".
var sections = []string{"backend", "engine", "server"}

// flagKeys maps flags whose names differ from their config key.
var flagKeys = map[string]string{
	"state":           "state_path",
	"backend":         "backend.type",
	"backend-url":     "backend.url",
	"backend-timeout": "backend.timeout",
	"concurrency":     "engine.concurrency",
	"unit-timeout":    "engine.unit_timeout",
	"stop-grace":      "engine.stop_grace",
	"max-steps":       "engine.max_steps",
	"port":            "server.port",
	"watch":           "server.watch",
}

// configKeys are the top-level keys a flag may set under its own name.
var configKeys = map[string]bool{"workspace": true, "log_level": true, "output": true}

// Package-level config file tracking
var configFileUsed string

// ResetConfig clears the loader state. Used for testing.
func ResetConfig() {
	configFileUsed = ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Directory of an explicit --config file
//  2. Search upward from CWD for testide.yaml
//  3. Current working directory
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := sharedcfg.FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey transforms TESTIDE_ENGINE_UNIT_TIMEOUT into engine.unit_timeout.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey returns the config key of a flag, or "" for flags that are not
// configuration (like --config or --select).
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	key := strings.ReplaceAll(name, "-", "_")
	if configKeys[key] {
		return key
	}
	return ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	projectRoot := inferProjectRoot(cfgFile)

	// 1. Load defaults
	def := Default()
	if err := k.Load(confmap.Provider(map[string]any{
		"workspace":           def.Workspace,
		"state_path":          def.StatePath,
		"log_level":           def.LogLevel,
		"output":              def.OutputFormat,
		"backend.type":        def.Backend.Type,
		"backend.timeout":     def.Backend.Timeout.String(),
		"engine.concurrency":  def.Engine.Concurrency,
		"engine.unit_timeout": "0s",
		"engine.stop_grace":   "0s",
		"engine.max_steps":    0,
		"server.port":         def.Server.Port,
		"server.watch":        def.Server.Watch,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = cfgFile
	if configFileUsed == "" {
		configFileUsed = sharedcfg.FindConfigFile(projectRoot)
	}
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (TESTIDE_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	flagPaths := make(map[string]bool)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := flagKey(f.Name)
			if key == "workspace" || key == "state_path" {
				flagPaths[key] = true
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths. Flag paths are relative to CWD, everything else to
	// the project root.
	cfg.ProjectRoot = projectRoot
	cfg.Workspace = resolvePath(cfg.Workspace, projectRoot, flagPaths["workspace"])
	cfg.StatePath = resolvePath(cfg.StatePath, projectRoot, flagPaths["state_path"])

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func resolvePath(path, projectRoot string, fromFlag bool) string {
	if fromFlag && path != ":memory:" {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return resolvePathRelativeTo(path, projectRoot)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// ParseLogLevel converts a level name into a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q (debug|info|warn|error)", s)
	}
	return level, nil
}

// NewLogger builds the text logger used by commands.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from the command context, or the defaults
// when none was loaded.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}
