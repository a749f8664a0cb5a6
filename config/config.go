package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/clinicdesk/scheduling-api/pkg/messaging/redis"
	"github.com/clinicdesk/scheduling-api/pkg/worker"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// ClinicConfig carries scheduling policy shared by every doctor in the
// deployment. Timezone anchors all wall-clock slot math; dates and times are
// stored timezone-naive and interpreted in this location.
type ClinicConfig struct {
	Timezone string `yaml:"timezone"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Clinic   ClinicConfig   `yaml:"clinic"`
	JWT      struct {
		Secret      string `yaml:"secret"`
		ExpiryHours int    `yaml:"expiry_hours"`
	} `yaml:"jwt"`
	Redis     RedisConfig `yaml:"redis"`
	RateLimit struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Security struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"security"`
	Outbox OutboxConfig `yaml:"outbox"`
}

type OutboxConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment overrides for containerized deployments
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		config.Database.Port, _ = strconv.Atoi(port)
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}
	if tz := os.Getenv("CLINIC_TIMEZONE"); tz != "" {
		config.Clinic.Timezone = tz
	}

	if config.Clinic.Timezone == "" {
		config.Clinic.Timezone = "Asia/Kolkata"
	}

	return &config, nil
}

// Location resolves the configured clinic timezone.
func (c *ClinicConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
