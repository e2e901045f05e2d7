// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/kleinsuche/kleinsuche/internal/cache"
	"github.com/kleinsuche/kleinsuche/internal/geo"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Cache    cache.Config   `mapstructure:"cache"`
	RateGate RateGateConfig `mapstructure:"rategate"`
	Geo      geo.Config     `mapstructure:"geo"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Stats    StatsConfig    `mapstructure:"stats"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ScraperConfig governs the headless browser backend.
type ScraperConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	// Autostart launches the browser at boot. When false the scraper
	// endpoints answer 503 until the browser is started.
	Autostart bool `mapstructure:"autostart"`
}

// RateGateConfig sets the global admission interval.
type RateGateConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
}

// ProxyConfig restricts the generic proxy endpoint.
type ProxyConfig struct {
	AllowHosts []string `mapstructure:"allow_hosts"`
}

// StatsConfig locates the persisted usage counters.
type StatsConfig struct {
	File string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KLEINSUCHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("scraper.user_agent", "kleinsuche/0.1")
	v.SetDefault("scraper.nav_timeout_seconds", 120)
	v.SetDefault("scraper.autostart", true)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.max_bytes", int64(8)<<30)
	v.SetDefault("rategate.interval_ms", 1000)
	v.SetDefault("geo.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geo.photon_url", "https://photon.komoot.io")
	v.SetDefault("geo.ors_url", "https://api.openrouteservice.org")
	v.SetDefault("geo.step_km", 10.0)
	v.SetDefault("geo.timeout_seconds", 15)
	v.SetDefault("geo.user_agent", "kleinsuche/0.1")
	v.SetDefault("stats.file", "stats.json")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must be >= 0")
	}
	if c.RateGate.IntervalMs < 0 {
		return fmt.Errorf("rategate.interval_ms must be >= 0")
	}
	if c.Scraper.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.nav_timeout_seconds must be > 0")
	}
	if c.Geo.StepKm <= 0 {
		return fmt.Errorf("geo.step_km must be > 0")
	}
	return nil
}
