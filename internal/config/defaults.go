package config

import "time"

// Default configuration values.
const (
	DefaultBackend        = BackendLocal
	DefaultBackendTimeout = 30 * time.Second
	DefaultConcurrency    = 1
	DefaultServerPort     = 8765
)

// DefaultBackendConfig returns the backend configuration with default values.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{Type: DefaultBackend, Timeout: DefaultBackendTimeout}
}

// DefaultEngineConfig returns the engine configuration with default values.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Concurrency: DefaultConcurrency}
}

// DefaultServerConfig returns the server configuration with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Port: DefaultServerPort, Watch: true}
}
