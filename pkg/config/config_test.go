package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "replay", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Engine.StepTimeout)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentRuns)
	assert.Equal(t, 50000, cfg.Oracle.MaxPageChars)
	assert.Equal(t, 90*time.Second, cfg.Healing.AttemptTimeout)
	assert.True(t, cfg.Healing.Enabled)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Empty(t, cfg.Store.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	doc := `
providers:
  openai:
    api_key: sk-test
    model: gpt-4o-mini
    enabled: true
  openrouter:
    model: other
engine:
  step_timeout: 30s
  default_wait_time: 0.5
policy:
  denied_urls: ["^file://"]
  allowed_hosts: [github.com]
store:
  path: runs.db
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("REPLAY_AGENT_MAX_STEPS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Engine.StepTimeout)
	assert.Equal(t, 0.5, cfg.Engine.DefaultWaitTime)
	assert.Equal(t, []string{"^file://"}, cfg.Policy.DeniedURLs)
	assert.Equal(t, []string{"github.com"}, cfg.Policy.AllowedHosts)
	assert.Equal(t, "runs.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)

	name, p, ok := cfg.GetDefaultProvider()
	require.True(t, ok)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "gpt-4o-mini", p.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Engine.MaxConcurrentRuns = 0
	bad.Oracle.Timeout = 0
	bad.Engine.DefaultWaitTime = -1
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_concurrent_runs must be a positive integer")
	assert.Contains(t, err.Error(), "oracle.timeout must be positive")
	assert.Contains(t, err.Error(), "engine.default_wait_time must not be negative")

	v.Set("agent.max_steps", 0)
	_, err = NewConfigFromViper(v)
	assert.ErrorContains(t, err, "agent.max_steps")
}

func TestGetDefaultProvider_None(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{"openai": {Model: "x"}}}
	_, _, ok := cfg.GetDefaultProvider()
	assert.False(t, ok)
}
