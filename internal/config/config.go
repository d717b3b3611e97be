// Package config loads the aggregator configuration from YAML with
// environment overrides, applying defaults and clamps.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults and bounds for the timing knobs.
const (
	DefaultRefreshIntervalMs  = 1000
	DefaultPushIntervalMs     = 30000
	DefaultHeartbeatTimeoutMs = 60000
	MinHeartbeatTimeoutMs     = 15000
	MaxHeartbeatTimeoutMs     = 300000
)

type Config struct {
	RefreshIntervalMs  int `yaml:"refresh_interval_ms"`
	PushIntervalMs     int `yaml:"push_interval_ms"`
	HeartbeatTimeoutMs int `yaml:"heartbeat_timeout_ms"`

	LogLevel string `yaml:"log_level"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Bus struct {
		URL string `yaml:"url"`
	} `yaml:"bus"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Labels struct {
		Path string `yaml:"path"`
	} `yaml:"labels"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.normalize()
	return c
}

// Load reads a YAML config file, then applies environment overrides,
// defaults, and clamps.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	c.normalize()
	return c, nil
}

func (c *Config) applyEnv() {
	setString(&c.Redis.Addr, "TRANSITDECK_REDIS_ADDR")
	setString(&c.Redis.Password, "TRANSITDECK_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "TRANSITDECK_REDIS_DB")
	setString(&c.Bus.URL, "TRANSITDECK_BUS_URL")
	setString(&c.Postgres.DSN, "TRANSITDECK_PG_DSN")
	setString(&c.HTTP.Addr, "TRANSITDECK_HTTP_ADDR")
	setString(&c.Labels.Path, "TRANSITDECK_LABELS_PATH")
	setString(&c.LogLevel, "TRANSITDECK_LOG_LEVEL")
	setInt(&c.RefreshIntervalMs, "TRANSITDECK_REFRESH_INTERVAL_MS")
	setInt(&c.PushIntervalMs, "TRANSITDECK_PUSH_INTERVAL_MS")
	setInt(&c.HeartbeatTimeoutMs, "TRANSITDECK_HEARTBEAT_TIMEOUT_MS")
}

func (c *Config) normalize() {
	if c.RefreshIntervalMs <= 0 {
		c.RefreshIntervalMs = DefaultRefreshIntervalMs
	}
	if c.PushIntervalMs <= 0 {
		c.PushIntervalMs = DefaultPushIntervalMs
	}
	if c.HeartbeatTimeoutMs <= 0 {
		c.HeartbeatTimeoutMs = DefaultHeartbeatTimeoutMs
	}
	if c.HeartbeatTimeoutMs < MinHeartbeatTimeoutMs {
		c.HeartbeatTimeoutMs = MinHeartbeatTimeoutMs
	}
	if c.HeartbeatTimeoutMs > MaxHeartbeatTimeoutMs {
		c.HeartbeatTimeoutMs = MaxHeartbeatTimeoutMs
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c Config) PushInterval() time.Duration {
	return time.Duration(c.PushIntervalMs) * time.Millisecond
}

func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMs) * time.Millisecond
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
