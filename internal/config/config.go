package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT" validate:"required"`

	DBHost     string `mapstructure:"DB_HOST" validate:"required"`
	DBPort     string `mapstructure:"DB_PORT" validate:"required"`
	DBUser     string `mapstructure:"DB_USER" validate:"required"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME" validate:"required"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE" validate:"required"`

	// RedisAddr is optional; when empty the per-account lock is disabled and
	// the database row locks are the only serialization.
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	LockTTLSeconds   int    `mapstructure:"LOCK_TTL_SECONDS" validate:"min=1"`
	LockWaitSeconds  int    `mapstructure:"LOCK_WAIT_SECONDS" validate:"min=1"`
	RateLimitPerSec  int    `mapstructure:"RATE_LIMIT_PER_SEC" validate:"min=0"`
	RateLimitBurst   int    `mapstructure:"RATE_LIMIT_BURST" validate:"min=0"`
}

// Load reads configuration from the environment with sane defaults. Every
// key needs a default (or an explicit bind) for viper to pick up the env
// var during Unmarshal.
func Load() (*Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "accounts")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("LOCK_TTL_SECONDS", 30)
	viper.SetDefault("LOCK_WAIT_SECONDS", 3)
	viper.SetDefault("RATE_LIMIT_PER_SEC", 100)
	viper.SetDefault("RATE_LIMIT_BURST", 200)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
