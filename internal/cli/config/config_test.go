package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedcfg "github.com/leapstack-labs/testide/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), sharedcfg.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("workspace", "", "")
	flags.String("state", "", "")
	flags.String("log-level", "", "")
	flags.String("backend", "", "")
	flags.Int("concurrency", 0, "")
	flags.Duration("unit-timeout", 0, "")
	flags.Bool("json", false, "")
	return flags
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "{}\n")

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	root := filepath.Dir(cfgPath)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, root, cfg.Workspace)
	assert.Equal(t, filepath.Join(root, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Equal(t, sharedcfg.BackendLocal, cfg.Backend.Type)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 1, cfg.Engine.Concurrency)
	assert.Zero(t, cfg.Engine.UnitTimeout)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.True(t, cfg.Server.Watch)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, `
workspace: tests
state_path: /tmp/history.db
log_level: debug
output: json
backend:
  type: remote
  url: http://localhost:9000
  timeout: 5s
engine:
  concurrency: 4
  unit_timeout: 2m
  stop_grace: 10s
  max_steps: 100000
server:
  port: 9999
  watch: false
`)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "tests"), cfg.Workspace)
	assert.Equal(t, "/tmp/history.db", cfg.StatePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, sharedcfg.BackendConfig{Type: "remote", URL: "http://localhost:9000", Timeout: 5 * time.Second}, cfg.Backend)
	assert.Equal(t, sharedcfg.EngineConfig{Concurrency: 4, UnitTimeout: 2 * time.Minute, StopGrace: 10 * time.Second, MaxSteps: 100000}, cfg.Engine)
	assert.Equal(t, sharedcfg.ServerConfig{Port: 9999, Watch: false}, cfg.Server)
}

func TestLoadConfig_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		flag    string
		want    int
		wantLvl string
	}{
		{name: "file only", want: 2, wantLvl: "info"},
		{name: "env over file", env: "3", want: 3, wantLvl: "error"},
		{name: "flag over env", env: "3", flag: "5", want: 5, wantLvl: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			cfgPath := writeConfig(t, "log_level: info\nengine:\n  concurrency: 2\n")

			if tt.env != "" {
				t.Setenv("TESTIDE_ENGINE_CONCURRENCY", tt.env)
				t.Setenv("TESTIDE_LOG_LEVEL", "error")
			}
			flags := newFlags()
			if tt.flag != "" {
				require.NoError(t, flags.Set("concurrency", tt.flag))
			}

			cfg, err := LoadConfig(cfgPath, flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Engine.Concurrency)
			assert.Equal(t, tt.wantLvl, cfg.LogLevel)
		})
	}
}

func TestLoadConfig_FlagsAreRelativeToCWD(t *testing.T) {
	ResetConfig()
	cfgPath := writeConfig(t, "{}\n")

	flags := newFlags()
	require.NoError(t, flags.Set("workspace", "ws"))
	require.NoError(t, flags.Set("state", ":memory:"))
	require.NoError(t, flags.Set("unit-timeout", "1500ms"))
	require.NoError(t, flags.Set("json", "true"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "ws"), cfg.Workspace)
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.UnitTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"bad yaml", "engine: [", "error reading config file"},
		{"bad level", "log_level: loud\n", `invalid log_level "loud"`},
		{"bad output", "output: html\n", `unknown output format "html"`},
		{"remote without url", "backend:\n  type: remote\n", "backend.url is required"},
		{"zero concurrency", "engine:\n  concurrency: 0\n", "engine.concurrency must be at least 1"},
		{"bad duration", "engine:\n  stop_grace: soon\n", "unable to decode config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "engine.unit_timeout", envKey("TESTIDE_ENGINE_UNIT_TIMEOUT"))
	assert.Equal(t, "backend.url", envKey("TESTIDE_BACKEND_URL"))
	assert.Equal(t, "state_path", envKey("TESTIDE_STATE_PATH"))
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "state_path", flagKey("state"))
	assert.Equal(t, "engine.stop_grace", flagKey("stop-grace"))
	assert.Equal(t, "log_level", flagKey("log-level"))
	assert.Empty(t, flagKey("config"))
	assert.Empty(t, flagKey("select"))
}

func TestValidateWorkspace(t *testing.T) {
	cfg := Default()
	cfg.Workspace = t.TempDir()
	err := cfg.ValidateWorkspace()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace manifest not found")

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace, "testide.workspace.yaml"), []byte("files: []\n"), 0o600))
	assert.NoError(t, cfg.ValidateWorkspace())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info")
	logger.Debug("hidden")
	logger.Info("shown", "run_id", "r1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "run_id=r1")

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
	assert.NotNil(t, GetLogger(context.Background()))
}

func TestConfigContext(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, GetConfig(ctx))
	assert.Equal(t, DefaultLogLevel, GetConfig(context.Background()).LogLevel)
}
