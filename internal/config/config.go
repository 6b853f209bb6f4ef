// Package config loads the daemon configuration from YAML, applies
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/smart-house/internal/logging"
)

// Config is the root configuration structure.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Cache   CacheConfig   `yaml:"cache"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	URL               string        `yaml:"url"`
	ClientPrefix      string        `yaml:"client_prefix"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// CacheConfig contains the sensor history cache settings.
type CacheConfig struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HTTPConfig contains the status server settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults.
const (
	DefaultBrokerURL         = "wss://broker.hivemq.com:8884/mqtt"
	DefaultClientPrefix      = "webClient_"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultCachePath         = "smarthouse.db"
	DefaultRetention         = 7 * 24 * time.Hour
	DefaultSweepInterval     = time.Hour
	DefaultHTTPAddr          = ":8080"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			URL:               DefaultBrokerURL,
			ClientPrefix:      DefaultClientPrefix,
			ConnectTimeout:    DefaultConnectTimeout,
			ReconnectInterval: DefaultReconnectInterval,
		},
		Cache: CacheConfig{
			Path:          DefaultCachePath,
			Retention:     DefaultRetention,
			SweepInterval: DefaultSweepInterval,
		},
		HTTP:    HTTPConfig{Addr: DefaultHTTPAddr},
		Logging: LoggingConfig{Level: logging.InfoLevel},
	}
}

// Load reads the YAML file at path over the defaults. An empty path skips
// the file. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMARTHOUSE_MQTT_URL"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("SMARTHOUSE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("SMARTHOUSE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SMARTHOUSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.MQTT.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("mqtt.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "tcp" && u.Scheme != "ssl":
		errs = append(errs, fmt.Errorf("mqtt.url: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("mqtt.url: missing host"))
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("mqtt.connect_timeout must be positive"))
	}
	if c.MQTT.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("mqtt.reconnect_interval must be positive"))
	}
	if c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required"))
	}
	if c.Cache.Retention <= 0 {
		errs = append(errs, errors.New("cache.retention must be positive"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache.sweep_interval must be positive"))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
