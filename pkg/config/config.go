package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Remote struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port" default:"9000"`
		Database       string        `yaml:"database" default:"voldesk"`
		User           string        `yaml:"user" default:"default"`
		Password       string        `yaml:"password"`
		UseHTTP        bool          `yaml:"use_http"`
		DialTimeout    time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout    time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout   time.Duration `yaml:"write_timeout" default:"10s"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`
	} `yaml:"remote"`
	Local struct {
		Path string `yaml:"path" default:"./market_data.db"`
	} `yaml:"local"`
	Failover struct {
		ProbeTimeout   time.Duration `yaml:"probe_timeout" default:"3s"`
		HealthInterval time.Duration `yaml:"health_interval" default:"15s"`
	} `yaml:"failover"`
	Hub struct {
		SubscriberBuffer int `yaml:"subscriber_buffer" default:"256"`
	} `yaml:"hub"`
	Cache struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		Backend string        `yaml:"backend" default:"memory"` // memory or redis
		TTL     time.Duration `yaml:"ttl" default:"15s"`
		Redis   struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"voldesk"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled  bool     `yaml:"enabled"`
		Brokers  []string `yaml:"brokers"`
		Topic    string   `yaml:"topic" default:"voldesk.records"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"voldesk"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// Load reads and parses a YAML configuration file. A missing file is not an
// error; the config then comes entirely from defaults and environment
// overrides.
func Load(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. Remote credentials, local path, and allowed origins are passed
// through unchanged.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REMOTE_DB_HOST"); v != "" {
		c.Remote.Host = v
	}
	if v := os.Getenv("REMOTE_DB_PASSWORD"); v != "" {
		c.Remote.Password = v
	}
	if v := os.Getenv("LOCAL_DB_PATH"); v != "" {
		c.Local.Path = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local.path is required")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Failover.HealthInterval <= 0 {
		return fmt.Errorf("failover.health_interval must be positive")
	}
	return nil
}
