package config

import (
	sharedcfg "github.com/leapstack-labs/testide/internal/config"
)

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`

	Workspace    string `koanf:"workspace"`
	StatePath    string `koanf:"state_path"`
	LogLevel     string `koanf:"log_level"`
	OutputFormat string `koanf:"output"`

	Backend sharedcfg.BackendConfig `koanf:"backend"`
	Engine  sharedcfg.EngineConfig  `koanf:"engine"`
	Server  sharedcfg.ServerConfig  `koanf:"server"`
}

// Default configuration values.
const (
	DefaultWorkspace = "."
	DefaultStateFile = ".testide/state.db"
	DefaultLogLevel  = "warn"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Default returns the configuration used when nothing was loaded.
func Default() *Config {
	return &Config{
		Workspace:    DefaultWorkspace,
		StatePath:    DefaultStateFile,
		LogLevel:     DefaultLogLevel,
		OutputFormat: DefaultOutput,
		Backend:      sharedcfg.DefaultBackendConfig(),
		Engine:       sharedcfg.DefaultEngineConfig(),
		Server:       sharedcfg.DefaultServerConfig(),
	}
}
