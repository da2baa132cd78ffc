package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// ServerConfig controls the HTTP API surface.
type ServerConfig struct {
	HTTPPort  int    `json:"http_port"`
	AuthToken string `json:"auth_token"`
}

// AuthConfig describes the OAuth boundary this instance diagnoses.
type AuthConfig struct {
	RequiredScopes []string `json:"required_scopes"`
	OptionalScopes []string `json:"optional_scopes"`
	MinAppVersion  string   `json:"min_app_version"`
	AppVersion     string   `json:"app_version"`
}

// EndpointsConfig names the external collaborator endpoints.
type EndpointsConfig struct {
	TokenInfoURL    string `json:"tokeninfo_url"`
	TokenRefreshURL string `json:"token_refresh_url"`
	IdentityAPIURL  string `json:"identity_api_url"`
	ReachabilityURL string `json:"reachability_url"`
}

// DiagnosticsConfig tunes the engine, cache, and monitor.
type DiagnosticsConfig struct {
	CacheTTLSeconds        int `json:"cache_ttl_seconds"`
	MonitorIntervalSeconds int `json:"monitor_interval_seconds"`
	RefreshTimeoutMS       int `json:"refresh_timeout_ms"`
	RefreshRetryCount      int `json:"refresh_retry_count"`
}

// DatabaseConfig locates the sqlite history database.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DiscordConfig enables the optional alert channel when a bot token is set.
type DiscordConfig struct {
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// Config is the full authdoctor configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Auth        AuthConfig        `json:"auth"`
	Endpoints   EndpointsConfig   `json:"endpoints"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
	Database    DatabaseConfig    `json:"database"`
	Channels    struct {
		Discord DiscordConfig `json:"discord"`
	} `json:"channels"`
}

// Load reads and validates a config file, applying defaults for absent
// fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8089
	}
	if c.Diagnostics.CacheTTLSeconds <= 0 {
		c.Diagnostics.CacheTTLSeconds = 30
	}
	if c.Diagnostics.MonitorIntervalSeconds <= 0 {
		c.Diagnostics.MonitorIntervalSeconds = 60
	}
	if c.Diagnostics.RefreshTimeoutMS <= 0 {
		c.Diagnostics.RefreshTimeoutMS = 30000
	}
	if c.Diagnostics.RefreshRetryCount <= 0 {
		c.Diagnostics.RefreshRetryCount = 3
	}
	if c.Database.Path == "" {
		c.Database.Path = "./authdoctor.db"
	}
	if len(c.Auth.RequiredScopes) == 0 {
		c.Auth.RequiredScopes = []string{"drive", "sheets"}
	}
	if len(c.Auth.OptionalScopes) == 0 {
		c.Auth.OptionalScopes = []string{"calendar"}
	}
}

// Validate checks semantic constraints that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("validation error: server.http_port %d out of range", c.Server.HTTPPort)
	}
	if c.Auth.MinAppVersion != "" {
		if _, err := semver.NewVersion(c.Auth.MinAppVersion); err != nil {
			return fmt.Errorf("validation error: auth.min_app_version %q is not semver: %w", c.Auth.MinAppVersion, err)
		}
	}
	if c.Channels.Discord.BotToken != "" && c.Channels.Discord.ChannelID == "" {
		return fmt.Errorf("validation error: channels.discord.channel_id is required when bot_token is set")
	}
	return nil
}

// MinAppVersion parses the configured minimum version, or nil when unset.
func (c *Config) MinAppVersion() *semver.Version {
	if c.Auth.MinAppVersion == "" {
		return nil
	}
	version, err := semver.NewVersion(c.Auth.MinAppVersion)
	if err != nil {
		return nil
	}
	return version
}
