// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal them; access still goes through the struct directly as
// there is no module-specific state to hide.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Voice    VoiceConfig    `mapstructure:"voice" yaml:"voice"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// OracleConfig configures the vision/planning oracle adapter.
type OracleConfig struct {
	// Model is the Gemini model used for page analysis.
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey is loaded from config, env (WEBPILOT_ORACLE_API_KEY), or .env.
	// An empty key disables the remote path entirely; the deterministic
	// classifier fallback serves every analysis.
	APIKey   string        `mapstructure:"api_key" yaml:"-"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RatePerMinute caps how often analyses may hit the remote model across
	// runs. Each analysis still makes at most one attempt.
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// ExecutorConfig tunes the step executor.
type ExecutorConfig struct {
	// ContinueOnError keeps the run going past a failed step. The whole-run
	// result is still "success" only when every step succeeded.
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error"`
	// RecoveryDelay is the fixed pause after a failed step before the next
	// one starts.
	RecoveryDelay time.Duration `mapstructure:"recovery_delay" yaml:"recovery_delay"`
	// StepTimeout bounds a single driver operation.
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// VoiceConfig controls the best-effort voice output path.
type VoiceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Engine optionally pins a synthesizer binary (say, espeak, ...). Empty
	// means autodetect; nothing found degrades silently to text-only.
	Engine string `mapstructure:"engine" yaml:"engine"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Goal      string
	TargetURL string
	OutputDir string
	Speak     bool
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot-cli")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.launch_timeout", "30s")

	// -- Oracle --
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.timeout", "30s")
	v.SetDefault("oracle.rate_per_minute", 10.0)

	// -- Executor --
	v.SetDefault("executor.continue_on_error", true)
	v.SetDefault("executor.recovery_delay", "1s")
	v.SetDefault("executor.step_timeout", "30s")

	// -- Voice --
	v.SetDefault("voice.enabled", false)
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("oracle.api_key", "WEBPILOT_ORACLE_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be a positive duration")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be a positive duration")
	}
	if c.Oracle.RatePerMinute <= 0 {
		return fmt.Errorf("oracle.rate_per_minute must be positive")
	}
	if c.Executor.RecoveryDelay < 0 {
		return fmt.Errorf("executor.recovery_delay must not be negative")
	}
	if c.Executor.StepTimeout <= 0 {
		return fmt.Errorf("executor.step_timeout must be a positive duration")
	}
	return nil
}
