// Package config loads the daemon's settings and site catalogue.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SettingsFile = "settings.yaml"
	WebsitesFile = "websites.yaml"
)

// Config is the merged contents of settings.yaml and websites.yaml.
type Config struct {
	Browser  BrowserConfig    `yaml:"browser" json:"browser"`
	Activity ActivityConfig   `yaml:"activity" json:"activity"`
	Clicking ClickingConfig   `yaml:"clicking" json:"clicking"`
	Service  ServiceConfig    `yaml:"service" json:"service"`
	Logging  LoggingConfig    `yaml:"logging" json:"logging"`
	Daemon   DaemonConfig     `yaml:"daemon" json:"daemon"`
	Schedule []ScheduleConfig `yaml:"schedule" json:"schedule"`

	Catalogue Catalogue `yaml:"-" json:"catalogue"`
}

type BrowserConfig struct {
	Type              string        `yaml:"type" json:"type"` // rod, container, playwright
	Headless          *bool         `yaml:"headless" json:"headless"`
	Bin               string        `yaml:"bin" json:"bin,omitempty"`
	ControlURL        string        `yaml:"control_url" json:"controlUrl,omitempty"`
	Image             string        `yaml:"image" json:"image,omitempty"`
	Profile           string        `yaml:"profile" json:"profile,omitempty"`
	ProfileDir        string        `yaml:"profile_dir" json:"-"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigationTimeout"`
}

// IsHeadless defaults to true when unset.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// ActivityConfig bounds, in seconds.
type ActivityConfig struct {
	ClickIntervalMin float64 `yaml:"click_interval_min" json:"clickIntervalMin"`
	ClickIntervalMax float64 `yaml:"click_interval_max" json:"clickIntervalMax"`
	PageDwellMin     float64 `yaml:"page_dwell_min" json:"pageDwellMin"`
	PageDwellMax     float64 `yaml:"page_dwell_max" json:"pageDwellMax"`
}

type ClickingConfig struct {
	ClicksPerPageMin int   `yaml:"clicks_per_page_min" json:"clicksPerPageMin"`
	ClicksPerPageMax int   `yaml:"clicks_per_page_max" json:"clicksPerPageMax"`
	EnableScrolling  *bool `yaml:"enable_scrolling" json:"enableScrolling"`
}

// ScrollingEnabled defaults to true when unset.
func (c ClickingConfig) ScrollingEnabled() bool {
	return c.EnableScrolling == nil || *c.EnableScrolling
}

type ServiceConfig struct {
	// SessionDuration in minutes; 0 runs until stopped.
	SessionDuration int `yaml:"session_duration" json:"sessionDuration"`
}

type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogFile string `yaml:"log_file" json:"-"`
}

type DaemonConfig struct {
	SocketPath       string        `yaml:"socket_path" json:"-"`
	HTTPAddr         string        `yaml:"http_addr" json:"httpAddr"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"readTimeout"`
	RateLimitPerHour int           `yaml:"rate_limit_per_hour" json:"rateLimitPerHour"`
	RateBurst        int           `yaml:"rate_burst" json:"rateBurst"`
}

type ScheduleConfig struct {
	Kind            string `yaml:"kind" json:"kind"` // interval, daily, hourly
	EveryMinutes    int    `yaml:"every_minutes" json:"everyMinutes,omitempty"`
	Hour            int    `yaml:"hour" json:"hour,omitempty"`
	Minute          int    `yaml:"minute" json:"minute,omitempty"`
	DurationMinutes int    `yaml:"duration_minutes" json:"durationMinutes"`
}

// Catalogue is the set of sites and queries a session draws from.
type Catalogue struct {
	Categories    map[string][]string `yaml:"categories" json:"categories"`
	SearchQueries []string            `yaml:"search_queries" json:"searchQueries"`
}

// Sites flattens all categories into one list, in category name order.
func (c Catalogue) Sites() []string {
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var sites []string
	for _, name := range names {
		sites = append(sites, c.Categories[name]...)
	}
	return sites
}

// Load reads both files from dir. A missing websites.yaml leaves the
// catalogue empty; a missing settings.yaml yields defaults.
func Load(dir string) (*Config, error) {
	settings, err := readOptional(filepath.Join(dir, SettingsFile))
	if err != nil {
		return nil, err
	}
	websites, err := readOptional(filepath.Join(dir, WebsitesFile))
	if err != nil {
		return nil, err
	}
	return Parse(settings, websites)
}

// Parse parses raw YAML into a validated Config.
func Parse(settings, websites []byte) (*Config, error) {
	cfg := &Config{}
	if len(settings) > 0 {
		if err := yaml.Unmarshal(settings, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", SettingsFile, err)
		}
	}
	if len(websites) > 0 {
		if err := yaml.Unmarshal(websites, &cfg.Catalogue); err != nil {
			return nil, fmt.Errorf("parse %s: %w", WebsitesFile, err)
		}
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks a Config for logical errors.
func Validate(cfg *Config) error {
	switch cfg.Browser.Type {
	case "rod", "container", "playwright":
	default:
		return fmt.Errorf("browser.type must be rod, container or playwright, got %q", cfg.Browser.Type)
	}
	if cfg.Activity.ClickIntervalMin < 0 || cfg.Activity.ClickIntervalMin > cfg.Activity.ClickIntervalMax {
		return fmt.Errorf("activity.click_interval_min must be within [0, click_interval_max]")
	}
	if cfg.Activity.PageDwellMin < 0 || cfg.Activity.PageDwellMin > cfg.Activity.PageDwellMax {
		return fmt.Errorf("activity.page_dwell_min must be within [0, page_dwell_max]")
	}
	if cfg.Clicking.ClicksPerPageMin < 1 || cfg.Clicking.ClicksPerPageMin > cfg.Clicking.ClicksPerPageMax {
		return fmt.Errorf("clicking.clicks_per_page_min must be within [1, clicks_per_page_max]")
	}
	if cfg.Service.SessionDuration < 0 {
		return fmt.Errorf("service.session_duration must be >= 0, got %d", cfg.Service.SessionDuration)
	}
	for i, s := range cfg.Schedule {
		if err := validateSchedule(s); err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSchedule(s ScheduleConfig) error {
	switch s.Kind {
	case "interval":
		if s.EveryMinutes < 1 {
			return fmt.Errorf("every_minutes must be >= 1")
		}
	case "daily":
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return fmt.Errorf("daily time %02d:%02d out of range", s.Hour, s.Minute)
		}
	case "hourly":
		if s.Minute < 0 || s.Minute > 59 {
			return fmt.Errorf("hourly minute %d out of range", s.Minute)
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.DurationMinutes < 0 {
		return fmt.Errorf("duration_minutes must be >= 0")
	}
	return nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}
