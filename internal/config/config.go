// Package config handles pinwatch configuration from YAML files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvTelegramToken = "PINWATCH_TELEGRAM_TOKEN"
	EnvState         = "PINWATCH_STATE"
)

// Modes.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
)

// Config is the top-level pinwatch configuration.
type Config struct {
	Storefront StorefrontConfig `yaml:"storefront"`
	Items      []string         `yaml:"items"`
	Locations  []string         `yaml:"locations"`
	Mode       string           `yaml:"mode"` // browser | http
	Browser    BrowserConfig    `yaml:"browser"`
	Resolver   ResolverConfig   `yaml:"resolver"`

	PreferStructured  bool `yaml:"prefer_structured"`
	ScreenshotOnAlert bool `yaml:"screenshot_on_alert"`
	AlertEveryInStock bool `yaml:"alert_every_in_stock"`

	Notify NotifyConfig `yaml:"notify"`
	State  StateConfig  `yaml:"state"`
	Files  FilesConfig  `yaml:"files"`
	Poll   PollConfig   `yaml:"poll"`
}

// StorefrontConfig locates the monitored storefront.
type StorefrontConfig struct {
	BaseURL      string `yaml:"base_url"`
	BuildID      string `yaml:"build_id"` // fallback when discovery fails
	HomePath     string `yaml:"home_path"`
	CookieDomain string `yaml:"cookie_domain"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote        string        `yaml:"remote"`
	Headless      bool          `yaml:"headless"`
	Minimized     bool          `yaml:"minimized"`
	XvfbDisplay   string        `yaml:"xvfb_display"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
	// WindowWidth and WindowHeight size the window and any Xvfb screen.
	WindowWidth  int `yaml:"window_width"`
	WindowHeight int `yaml:"window_height"`
}

// ResolverConfig controls location resolution.
type ResolverConfig struct {
	// Auto runs the strategy chain; false goes straight to the operator.
	Auto       bool     `yaml:"auto"`
	Strategies []string `yaml:"strategies"`
}

// NotifyConfig holds notification credentials.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// TelegramConfig holds Bot API credentials and targets.
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChatID      string `yaml:"chat_id"`
	TopicID     string `yaml:"topic_id"`
	ErrorChatID string `yaml:"error_chat_id"`
}

// WebhookConfig defines a JSON webhook target.
type WebhookConfig struct {
	URL     string `yaml:"url"`
	Retries int    `yaml:"retries"`
}

// StateConfig selects the observation store.
type StateConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Path    string `yaml:"path"`
}

// FilesConfig names the auxiliary files.
type FilesConfig struct {
	Flow           string `yaml:"flow"`
	SessionRecord  string `yaml:"session_record"`
	SessionHeaders string `yaml:"session_headers"`
}

// PollConfig controls pacing.
type PollConfig struct {
	// Interval between cycles when looping. Zero runs once.
	Interval      time.Duration `yaml:"interval"`
	ItemDelay     time.Duration `yaml:"item_delay"`
	LocationDelay time.Duration `yaml:"location_delay"`
	PageSettle    time.Duration `yaml:"page_settle"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := base()
	c.applyDefaults()
	return c
}

// base holds the defaults that a zero value cannot express.
func base() *Config {
	return &Config{
		Resolver:          ResolverConfig{Auto: true},
		PreferStructured:  true,
		ScreenshotOnAlert: true,
	}
}

// LoadFile reads a YAML configuration file. Keys absent from the file keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(getenv(EnvState)); v != "" {
		c.State.Path = v
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeBrowser && c.Mode != ModeHTTP {
		errs = append(errs, fmt.Errorf("config: mode %q: want browser or http", c.Mode))
	}
	if c.State.Backend != "json" && c.State.Backend != "sqlite" {
		errs = append(errs, fmt.Errorf("config: state.backend %q: want json or sqlite", c.State.Backend))
	}
	if u, err := url.Parse(c.Storefront.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: storefront.base_url %q is not an absolute URL", c.Storefront.BaseURL))
	}
	return errors.Join(errs...)
}

// Home is the storefront landing page.
func (c *Config) Home() string {
	return strings.TrimRight(c.Storefront.BaseURL, "/") + c.Storefront.HomePath
}

func (c *Config) applyDefaults() {
	if c.Storefront.BaseURL == "" {
		c.Storefront.BaseURL = "https://www.bigbasket.com"
	}
	c.Storefront.BaseURL = strings.TrimRight(c.Storefront.BaseURL, "/")
	if c.Storefront.HomePath == "" {
		c.Storefront.HomePath = "/"
	}
	if c.Storefront.CookieDomain == "" {
		if u, err := url.Parse(c.Storefront.BaseURL); err == nil && u.Hostname() != "" {
			c.Storefront.CookieDomain = "." + strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	if c.Mode == "" {
		c.Mode = ModeBrowser
	}
	c.Mode = strings.ToLower(c.Mode)
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 20 * time.Second
	}
	if c.Notify.Webhook.Retries <= 0 {
		c.Notify.Webhook.Retries = 3
	}
	if c.State.Backend == "" {
		c.State.Backend = "json"
	}
	if c.State.Path == "" {
		if c.State.Backend == "sqlite" {
			c.State.Path = "pinwatch_state.db"
		} else {
			c.State.Path = "pinwatch_state.json"
		}
	}
	if c.Files.Flow == "" {
		c.Files.Flow = "pincode_flow.json"
	}
	if c.Files.SessionRecord == "" {
		c.Files.SessionRecord = "pincode_session_record.json"
	}
	if c.Poll.ItemDelay <= 0 {
		c.Poll.ItemDelay = 2 * time.Second
	}
	if c.Poll.LocationDelay <= 0 {
		c.Poll.LocationDelay = 2 * time.Second
	}
	if c.Poll.PageSettle <= 0 {
		c.Poll.PageSettle = 3 * time.Second
	}
}
