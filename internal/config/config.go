package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL         string `yaml:"ttl"`
		CatalogPath string `yaml:"catalogPath"`
	} `yaml:"quiz"`
	Store struct {
		Driver  string `yaml:"driver"`
		Retries *int   `yaml:"retries"`
	} `yaml:"store"`
	Scoring struct {
		Speed struct {
			Enabled *bool    `yaml:"enabled"`
			Floor   *float64 `yaml:"floor"`
			Decay   *float64 `yaml:"decay"`
		} `yaml:"speed"`
		MultiSelectPartialCredit bool `yaml:"multiSelectPartialCredit"`
	} `yaml:"scoring"`
	Attempts struct {
		Live     int `yaml:"live"`
		Homework int `yaml:"homework"`
	} `yaml:"attempts"`
	Leaderboard struct {
		TopN               *int   `yaml:"topN"`
		HomeworkVisibility string `yaml:"homeworkVisibility"`
	} `yaml:"leaderboard"`
	Live struct {
		AutoAdvance      bool   `yaml:"autoAdvance"`
		AutoAdvanceGrace string `yaml:"autoAdvanceGrace"`
	} `yaml:"live"`
	Sync struct {
		PushInterval string `yaml:"pushInterval"`
	} `yaml:"sync"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
}

// StoreDriver resolves the configured driver. Without an explicit choice it is
// redis when an address is configured, otherwise memory.
func (c Config) StoreDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if driver != "" {
		return driver
	}
	if c.Redis.Addr != "" {
		return DriverRedis
	}
	return DriverMemory
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch c.StoreDriver() {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: store driver redis needs redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("config: store driver postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Leaderboard.HomeworkVisibility {
	case "", "always", "after_close":
	default:
		return fmt.Errorf("config: unknown leaderboard.homeworkVisibility %q", c.Leaderboard.HomeworkVisibility)
	}
	if f := c.Scoring.Speed.Floor; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("config: scoring.speed.floor must be within [0,1]")
	}
	if d := c.Scoring.Speed.Decay; d != nil && *d < 0 {
		return fmt.Errorf("config: scoring.speed.decay must not be negative")
	}
	if c.Attempts.Live < 0 || c.Attempts.Homework < 0 {
		return fmt.Errorf("config: attempts must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
