// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (HARVESTER_BROWSER_HEADLESS, ...).
const EnvPrefix = "HARVESTER"

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Search       SearchConfig       `mapstructure:"search" yaml:"search"`
	Harvest      HarvestConfig      `mapstructure:"harvest" yaml:"harvest"`
	Interception InterceptionConfig `mapstructure:"interception" yaml:"interception"`
	SideChannel  SideChannelConfig  `mapstructure:"sidechannel" yaml:"sidechannel"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
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

// BrowserConfig holds settings for the headless browser process and its tabs.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	AcceptLanguage    string        `mapstructure:"accept_language" yaml:"accept_language"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SearchConfig controls how search queries are turned into navigations.
type SearchConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// HarvestConfig bounds pagination.
type HarvestConfig struct {
	DefaultPages int `mapstructure:"default_pages" yaml:"default_pages"`
	MaxPages     int `mapstructure:"max_pages" yaml:"max_pages"`
}

// InterceptionConfig configures the request interceptor installed on the primary page.
type InterceptionConfig struct {
	MatchSubstring string        `mapstructure:"match_substring" yaml:"match_substring"`
	MatchTimeout   time.Duration `mapstructure:"match_timeout" yaml:"match_timeout"`
}

// SideChannelConfig configures the transient page used for the in-page fetch.
type SideChannelConfig struct {
	TrustedOrigin string `mapstructure:"trusted_origin" yaml:"trusted_origin"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "serp-harvester")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.shutdown_timeout", "10s")

	// -- Search --
	v.SetDefault("search.base_url", "https://www.google.com/search")

	// -- Harvest --
	v.SetDefault("harvest.default_pages", 1)
	v.SetDefault("harvest.max_pages", 10)

	// -- Interception --
	v.SetDefault("interception.match_substring", "bgasy")
	v.SetDefault("interception.match_timeout", "20s")

	// -- Side channel --
	v.SetDefault("sidechannel.trusted_origin", "https://www.google.com")

	// -- Server --
	v.SetDefault("server.listen_addr", ":3000")
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.run_timeout", "4m")
	v.SetDefault("server.shutdown_timeout", "30s")
}

// Bind wires environment variable overrides into v.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
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

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser.window_width and browser.window_height must be positive"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.navigation_timeout must be a positive duration"))
	}
	if c.Browser.LaunchTimeout <= 0 {
		errs = append(errs, errors.New("browser.launch_timeout must be a positive duration"))
	}
	if c.Browser.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("browser.shutdown_timeout must be a positive duration"))
	}
	if c.Search.BaseURL == "" {
		errs = append(errs, errors.New("search.base_url is required"))
	}
	if c.Harvest.DefaultPages < 1 {
		errs = append(errs, errors.New("harvest.default_pages must be at least 1"))
	}
	if c.Harvest.MaxPages < c.Harvest.DefaultPages {
		errs = append(errs, errors.New("harvest.max_pages must not be lower than harvest.default_pages"))
	}
	if c.Interception.MatchSubstring == "" {
		errs = append(errs, errors.New("interception.match_substring is required"))
	}
	if c.Interception.MatchTimeout <= 0 {
		errs = append(errs, errors.New("interception.match_timeout must be a positive duration"))
	}
	if c.SideChannel.TrustedOrigin == "" {
		errs = append(errs, errors.New("sidechannel.trusted_origin is required"))
	}
	if c.Server.RunTimeout <= 0 {
		errs = append(errs, errors.New("server.run_timeout must be a positive duration"))
	}
	// The router timeout would otherwise answer 504 while the run is still
	// being reported.
	if c.Server.RequestTimeout <= c.Server.RunTimeout {
		errs = append(errs, errors.New("server.request_timeout must be greater than server.run_timeout"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be a positive duration"))
	}
	return errors.Join(errs...)
}
