package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	FreeSwitchInstances []FSConfig    `yaml:"freeswitch_instances"`
	Buffer              BufferConfig  `yaml:"buffer"`
	Storage             StorageConfig `yaml:"storage"`
	Export              ExportConfig  `yaml:"export"`
	HTTP                HTTPConfig    `yaml:"http"`
	Logging             LoggingConfig `yaml:"logging"`
}

// FSConfig represents FreeSWITCH connection configuration
type FSConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// Address returns host:port for the ESL connection
func (f FSConfig) Address() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// BufferConfig represents the call metrics buffer configuration
type BufferConfig struct {
	Capacity       int    `yaml:"capacity"`
	Window         int    `yaml:"window"`          // calls averaged by the windowed call rate
	ZeroDelta      string `yaml:"zero_delta"`      // "clamp" or "error"
	MonotonicCheck bool   `yaml:"monotonic_check"` // validate num_failed_calls in seizure stats
}

// StorageConfig represents snapshot storage configuration
type StorageConfig struct {
	Type      string       `yaml:"type"` // "file", "redis" or "memory"
	Dir       string       `yaml:"dir"`
	KeyPrefix string       `yaml:"key_prefix"`
	Redis     *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ExportConfig represents call quality export configuration
type ExportConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from file or environment variables
// Priority: config file → environment variables
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		if err := loadFromFile(configPath, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := loadFromEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func (c *Config) redis() *RedisConfig {
	if c.Storage.Redis == nil {
		c.Storage.Redis = &RedisConfig{}
	}
	return c.Storage.Redis
}

// loadFromEnv loads configuration from environment variables with FSMEASURE_ prefix
func loadFromEnv(cfg *Config) error {
	if err := envInt("FSMEASURE_BUFFER_CAPACITY", &cfg.Buffer.Capacity); err != nil {
		return err
	}
	if err := envInt("FSMEASURE_BUFFER_WINDOW", &cfg.Buffer.Window); err != nil {
		return err
	}
	if zd := os.Getenv("FSMEASURE_BUFFER_ZERO_DELTA"); zd != "" {
		cfg.Buffer.ZeroDelta = zd
	}
	if mc := os.Getenv("FSMEASURE_BUFFER_MONOTONIC_CHECK"); mc != "" {
		cfg.Buffer.MonotonicCheck = mc == "true"
	}

	if err := envInt("FSMEASURE_HTTP_PORT", &cfg.HTTP.Port); err != nil {
		return err
	}

	if interval := os.Getenv("FSMEASURE_EXPORT_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid FSMEASURE_EXPORT_INTERVAL: %w", err)
		}
		cfg.Export.Interval = d
	}

	if level := os.Getenv("FSMEASURE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("FSMEASURE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if storageType := os.Getenv("FSMEASURE_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dir := os.Getenv("FSMEASURE_STORAGE_DIR"); dir != "" {
		cfg.Storage.Dir = dir
	}
	if prefix := os.Getenv("FSMEASURE_STORAGE_KEY_PREFIX"); prefix != "" {
		cfg.Storage.KeyPrefix = prefix
	}

	if redisHost := os.Getenv("FSMEASURE_REDIS_HOST"); redisHost != "" {
		cfg.redis().Host = redisHost
	}
	if os.Getenv("FSMEASURE_REDIS_PORT") != "" {
		if err := envInt("FSMEASURE_REDIS_PORT", &cfg.redis().Port); err != nil {
			return err
		}
	}
	if redisPassword := os.Getenv("FSMEASURE_REDIS_PASSWORD"); redisPassword != "" {
		cfg.redis().Password = redisPassword
	}
	if os.Getenv("FSMEASURE_REDIS_DB") != "" {
		if err := envInt("FSMEASURE_REDIS_DB", &cfg.redis().DB); err != nil {
			return err
		}
	}

	// Format: FSMEASURE_FREESWITCH_INSTANCES='[{"name":"fs1","host":"192.168.1.10","port":8021,"password":"ClueCon"}]'
	if fsInstances := os.Getenv("FSMEASURE_FREESWITCH_INSTANCES"); fsInstances != "" {
		var instances []FSConfig
		if err := yaml.Unmarshal([]byte(fsInstances), &instances); err != nil {
			return fmt.Errorf("invalid FSMEASURE_FREESWITCH_INSTANCES format (expected JSON array): %w", err)
		}
		if len(instances) > 0 {
			cfg.FreeSwitchInstances = instances
		}
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.FreeSwitchInstances) == 0 {
		return fmt.Errorf("at least one FreeSWITCH instance must be configured")
	}

	for i, fs := range c.FreeSwitchInstances {
		if fs.Name == "" {
			return fmt.Errorf("FreeSWITCH instance %d: name is required", i)
		}
		if fs.Host == "" {
			return fmt.Errorf("FreeSWITCH instance %s: host is required", fs.Name)
		}
		if fs.Port <= 0 || fs.Port > 65535 {
			return fmt.Errorf("FreeSWITCH instance %s: invalid port %d", fs.Name, fs.Port)
		}
		if fs.Password == "" {
			return fmt.Errorf("FreeSWITCH instance %s: password is required", fs.Name)
		}
	}

	if c.Buffer.Capacity < 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if c.Buffer.Window < 0 {
		return fmt.Errorf("buffer window must be positive, got %d", c.Buffer.Window)
	}
	if c.Buffer.ZeroDelta != "" && c.Buffer.ZeroDelta != "clamp" && c.Buffer.ZeroDelta != "error" {
		return fmt.Errorf("buffer zero_delta must be 'clamp' or 'error', got '%s'", c.Buffer.ZeroDelta)
	}

	switch c.Storage.Type {
	case "", "file", "memory":
	case "redis":
		if c.Storage.Redis == nil {
			return fmt.Errorf("Redis configuration is required when storage type is 'redis'")
		}
		if c.Storage.Redis.Host == "" {
			return fmt.Errorf("Redis host is required")
		}
		if c.Storage.Redis.Port <= 0 || c.Storage.Redis.Port > 65535 {
			return fmt.Errorf("invalid Redis port %d", c.Storage.Redis.Port)
		}
	default:
		return fmt.Errorf("storage type must be 'file', 'redis' or 'memory', got '%s'", c.Storage.Type)
	}

	if c.Export.Interval < 0 {
		return fmt.Errorf("export interval must be positive, got %s", c.Export.Interval)
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		if c.Logging.Format != "json" && c.Logging.Format != "text" {
			return fmt.Errorf("invalid log format '%s', must be 'json' or 'text'", c.Logging.Format)
		}
	}

	return nil
}

// setDefaults sets default values for optional fields
func (c *Config) setDefaults() {
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = 1 << 20
	}
	if c.Buffer.Window == 0 {
		c.Buffer.Window = 100
	}
	if c.Buffer.ZeroDelta == "" {
		c.Buffer.ZeroDelta = "clamp"
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Type == "file" && c.Storage.Dir == "" {
		c.Storage.Dir = "./snapshots"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "fsmeasure"
	}

	if c.Export.Interval == 0 {
		c.Export.Interval = 10 * time.Second
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
