package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the captive portal daemon.
type Config struct {
	CheckURL   string `yaml:"check_url"`
	PortalHost string `yaml:"portal_host"`
	LoginURL   string `yaml:"login_url"`
	LogoutURL  string `yaml:"logout_url"`

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
	MaxIntervalSeconds int `yaml:"max_interval_seconds"`

	LoginAttempts        int `yaml:"login_attempts"`
	RetryInitialSeconds  int `yaml:"retry_initial_seconds"`
	VerifySettleSeconds  int `yaml:"verify_settle_seconds"`
	TriggerSettleSeconds int `yaml:"trigger_settle_seconds"`
	WatcherPollSeconds   int `yaml:"watcher_poll_seconds"`

	DataDirectory string `yaml:"data_directory"`
	HistoryLimit  int    `yaml:"history_limit"`

	Notifications bool   `yaml:"notifications"`
	ServerEnabled bool   `yaml:"server_enabled"`
	ServerAddr    string `yaml:"server_addr"`
}

// DefaultConfig returns sensible defaults in case no configuration file is
// provided. The portal endpoints default to a FortiGate-style gateway; real
// deployments override them.
func DefaultConfig() Config {
	return Config{
		CheckURL:   "http://clients3.google.com/generate_204",
		PortalHost: "192.168.1.1:1003",
		LoginURL:   "https://192.168.1.1:1003/fgtauth",
		LogoutURL:  "https://192.168.1.1:1003/logout",

		HTTPTimeoutSeconds: 10,
		MinIntervalSeconds: 10,
		MaxIntervalSeconds: 1800,

		LoginAttempts:        3,
		RetryInitialSeconds:  2,
		VerifySettleSeconds:  2,
		TriggerSettleSeconds: 3,
		WatcherPollSeconds:   5,

		DataDirectory: defaultDataDirectory(),
		HistoryLimit:  500,

		Notifications: true,
		ServerEnabled: false,
		ServerAddr:    "127.0.0.1:8642",
	}
}

func defaultDataDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", "autoportal-data")
	}
	return filepath.Join(home, ".local", "share", "autoportal")
}

// Load reads configuration from a yaml file. Missing files fall back to
// defaults, zero or negative values are clamped to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	def := DefaultConfig()
	if cfg.CheckURL == "" {
		cfg.CheckURL = def.CheckURL
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = def.HTTPTimeoutSeconds
	}
	if cfg.MinIntervalSeconds <= 0 {
		cfg.MinIntervalSeconds = def.MinIntervalSeconds
	}
	if cfg.MaxIntervalSeconds < cfg.MinIntervalSeconds {
		cfg.MaxIntervalSeconds = def.MaxIntervalSeconds
	}
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = def.LoginAttempts
	}
	if cfg.RetryInitialSeconds <= 0 {
		cfg.RetryInitialSeconds = def.RetryInitialSeconds
	}
	if cfg.VerifySettleSeconds < 0 {
		cfg.VerifySettleSeconds = def.VerifySettleSeconds
	}
	if cfg.TriggerSettleSeconds < 0 {
		cfg.TriggerSettleSeconds = def.TriggerSettleSeconds
	}
	if cfg.WatcherPollSeconds <= 0 {
		cfg.WatcherPollSeconds = def.WatcherPollSeconds
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = def.DataDirectory
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = def.ServerAddr
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	for name, raw := range map[string]string{
		"check_url":  cfg.CheckURL,
		"login_url":  cfg.LoginURL,
		"logout_url": cfg.LogoutURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s is not a valid absolute URL: %q", name, raw)
		}
	}
	if cfg.PortalHost == "" {
		return errors.New("portal_host must not be empty")
	}
	return nil
}
