// Package config provides the configuration types shared by the CLI and the
// HTTP server: backend selection, engine tuning and server settings.
// It is decoupled from CLI concerns.
package config

import (
	"fmt"
	"time"
)

// Backend types.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// BackendConfig selects and configures the parse/execution backend.
type BackendConfig struct {
	Type    string        `koanf:"type"` // local, remote
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Validate checks if the backend configuration is valid.
func (b *BackendConfig) Validate() error {
	switch b.Type {
	case BackendLocal:
		return nil
	case BackendRemote:
		if b.URL == "" {
			return fmt.Errorf("backend.url is required for the remote backend")
		}
		if b.Timeout < 0 {
			return fmt.Errorf("backend.timeout must not be negative")
		}
		return nil
	case "":
		return fmt.Errorf("backend type is required")
	default:
		return fmt.Errorf("unknown backend type %q (available: %s, %s)", b.Type, BackendLocal, BackendRemote)
	}
}

// EngineConfig tunes run execution.
type EngineConfig struct {
	// Concurrency bounds units executing at once; 1 runs them sequentially.
	Concurrency int `koanf:"concurrency"`
	// UnitTimeout bounds one execution; 0 disables it.
	UnitTimeout time.Duration `koanf:"unit_timeout"`
	// StopGrace finalizes units still running this long after a stop; 0 waits.
	StopGrace time.Duration `koanf:"stop_grace"`
	// MaxSteps bounds Starlark execution steps in the local backend; 0 is unlimited.
	MaxSteps uint64 `koanf:"max_steps"`
}

// Validate checks if the engine configuration is valid.
func (e *EngineConfig) Validate() error {
	if e.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be at least 1, got %d", e.Concurrency)
	}
	if e.UnitTimeout < 0 {
		return fmt.Errorf("engine.unit_timeout must not be negative")
	}
	if e.StopGrace < 0 {
		return fmt.Errorf("engine.stop_grace must not be negative")
	}
	return nil
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// Validate checks if the server configuration is valid.
func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Port)
	}
	return nil
}
