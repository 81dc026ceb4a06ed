// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "serp-harvester", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	assert.Equal(t, 1080, cfg.Browser.WindowHeight)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, "https://www.google.com/search", cfg.Search.BaseURL)
	assert.Equal(t, 1, cfg.Harvest.DefaultPages)
	assert.Equal(t, "bgasy", cfg.Interception.MatchSubstring)
	assert.Equal(t, 20*time.Second, cfg.Interception.MatchTimeout)
	assert.Equal(t, "https://www.google.com", cfg.SideChannel.TrustedOrigin)
	assert.Equal(t, ":3000", cfg.Server.ListenAddr)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero window", func(c *Config) { c.Browser.WindowWidth = 0 }, "browser.window_width"},
		{"no navigation timeout", func(c *Config) { c.Browser.NavigationTimeout = 0 }, "browser.navigation_timeout"},
		{"no launch timeout", func(c *Config) { c.Browser.LaunchTimeout = -time.Second }, "browser.launch_timeout"},
		{"empty base url", func(c *Config) { c.Search.BaseURL = "" }, "search.base_url"},
		{"zero default pages", func(c *Config) { c.Harvest.DefaultPages = 0 }, "harvest.default_pages"},
		{"max below default", func(c *Config) { c.Harvest.DefaultPages = 3; c.Harvest.MaxPages = 2 }, "harvest.max_pages"},
		{"empty match substring", func(c *Config) { c.Interception.MatchSubstring = "" }, "interception.match_substring"},
		{"no match timeout", func(c *Config) { c.Interception.MatchTimeout = 0 }, "interception.match_timeout"},
		{"no trusted origin", func(c *Config) { c.SideChannel.TrustedOrigin = "" }, "sidechannel.trusted_origin"},
		{"no browser shutdown timeout", func(c *Config) { c.Browser.ShutdownTimeout = 0 }, "browser.shutdown_timeout"},
		{"no run timeout", func(c *Config) { c.Server.RunTimeout = 0 }, "server.run_timeout"},
		{"request timeout equals run timeout", func(c *Config) { c.Server.RequestTimeout = c.Server.RunTimeout }, "server.request_timeout"},
		{"request timeout below run timeout", func(c *Config) { c.Server.RequestTimeout = time.Minute; c.Server.RunTimeout = 2 * time.Minute }, "server.request_timeout"},
		{"no server shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, "server.shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("reports every violation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Search.BaseURL = ""
		cfg.SideChannel.TrustedOrigin = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search.base_url")
		assert.Contains(t, err.Error(), "sidechannel.trusted_origin")
	})
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yaml := []byte(`
browser:
  headless: false
  navigation_timeout: 45s
harvest:
  max_pages: 4
interception:
  match_substring: "xjs"
`)
		require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
		assert.Equal(t, 4, cfg.Harvest.MaxPages)
		assert.Equal(t, "xjs", cfg.Interception.MatchSubstring)
		// Untouched keys keep their defaults.
		assert.Equal(t, 1920, cfg.Browser.WindowWidth)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("HARVESTER_SERVER_LISTEN_ADDR", ":9090")
		t.Setenv("HARVESTER_INTERCEPTION_MATCH_TIMEOUT", "3s")

		v := viper.New()
		SetDefaults(v)
		Bind(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Server.ListenAddr)
		assert.Equal(t, 3*time.Second, cfg.Interception.MatchTimeout)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("harvest.default_pages", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
