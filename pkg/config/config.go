package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. REPLAY_LOGGER_LEVEL.
const EnvPrefix = "REPLAY"

type Config struct {
	App       AppConfig                 `mapstructure:"app" yaml:"app"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Logger    LoggerConfig              `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig             `mapstructure:"browser" yaml:"browser"`
	Engine    EngineConfig              `mapstructure:"engine" yaml:"engine"`
	Oracle    OracleConfig              `mapstructure:"oracle" yaml:"oracle"`
	Healing   HealingConfig             `mapstructure:"healing" yaml:"healing"`
	Agent     AgentConfig               `mapstructure:"agent" yaml:"agent"`
	Policy    PolicyConfig              `mapstructure:"policy" yaml:"policy"`
	Store     StoreConfig               `mapstructure:"store" yaml:"store"`
}

type AppConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Workspace string `mapstructure:"workspace" yaml:"workspace"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

type EngineConfig struct {
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// DefaultWaitTime applies to definitions that declare none, in seconds.
	DefaultWaitTime   float64 `mapstructure:"default_wait_time" yaml:"default_wait_time"`
	MaxConcurrentRuns int     `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

type OracleConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	PromptDir         string        `mapstructure:"prompt_dir" yaml:"prompt_dir"`
	MaxPageChars      int           `mapstructure:"max_page_chars" yaml:"max_page_chars"`
}

type HealingConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

type PolicyConfig struct {
	DeniedTools     []string `mapstructure:"denied_tools" yaml:"denied_tools"`
	DeniedArguments []string `mapstructure:"denied_arguments" yaml:"denied_arguments"`
	DeniedURLs      []string `mapstructure:"denied_urls" yaml:"denied_urls"`
	AllowedHosts    []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
}

type StoreConfig struct {
	// Path of the sqlite run history; empty disables it.
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "replay")
	v.SetDefault("app.workspace", ".")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "auto")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "replay")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", "60s")

	v.SetDefault("engine.step_timeout", "2m")
	v.SetDefault("engine.default_wait_time", 0)
	v.SetDefault("engine.max_concurrent_runs", 4)

	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.requests_per_minute", 60)
	v.SetDefault("oracle.prompt_dir", "")
	v.SetDefault("oracle.max_page_chars", 50000)

	v.SetDefault("healing.enabled", true)
	v.SetDefault("healing.attempt_timeout", "90s")

	v.SetDefault("agent.max_steps", 10)

	v.SetDefault("store.path", "")
}

// Load reads the optional file at path, environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"browser.navigation_timeout", c.Browser.NavigationTimeout},
		{"engine.step_timeout", c.Engine.StepTimeout},
		{"oracle.timeout", c.Oracle.Timeout},
		{"healing.attempt_timeout", c.Healing.AttemptTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", t.key))
		}
	}
	if c.Engine.MaxConcurrentRuns <= 0 {
		errs = append(errs, errors.New("engine.max_concurrent_runs must be a positive integer"))
	}
	if c.Engine.DefaultWaitTime < 0 {
		errs = append(errs, errors.New("engine.default_wait_time must not be negative"))
	}
	if c.Oracle.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("oracle.requests_per_minute must not be negative"))
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, errors.New("agent.max_steps must be a positive integer"))
	}
	return errors.Join(errs...)
}

// GetDefaultProvider returns the enabled provider that sorts first by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig, bool) {
	var (
		name  string
		found ProviderConfig
		ok    bool
	)
	for n, p := range c.Providers {
		if p.Enabled && (!ok || n < name) {
			name, found, ok = n, p, true
		}
	}
	return name, found, ok
}
