package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Insights InsightsConfig `mapstructure:"insights"`
	TextGen  TextGenConfig  `mapstructure:"textgen"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds database configuration. Driver is postgres or sqlite;
// Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Path     string `mapstructure:"path"`
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis, database
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	HighWaterMark int           `mapstructure:"high_water_mark"`
	EvictCount    int           `mapstructure:"evict_count"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
}

// InsightsConfig holds analysis windows
type InsightsConfig struct {
	AtRiskLookbackDays    int    `mapstructure:"at_risk_lookback_days"`
	ProfileURLBase        string `mapstructure:"profile_url_base"`
	AttendanceHistoryDays int    `mapstructure:"attendance_history_days"`
	UpcomingHorizonDays   int    `mapstructure:"upcoming_horizon_days"`
}

// TextGenConfig holds the text generation service configuration
type TextGenConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// DigestConfig holds the weekly digest job configuration
type DigestConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Schedule      string   `mapstructure:"schedule"`
	Organizations []string `mapstructure:"organizations"`
	Topic         string   `mapstructure:"topic"`
}

// VaultConfig holds optional vault configuration
type VaultConfig struct {
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var envBindings = map[string]string{
	"server.port":                    "SERVER_PORT",
	"server.host":                    "SERVER_HOST",
	"database.driver":                "DATABASE_DRIVER",
	"database.host":                  "DATABASE_HOST",
	"database.port":                  "DATABASE_PORT",
	"database.name":                  "DATABASE_NAME",
	"database.user":                  "DATABASE_USER",
	"database.password":              "DATABASE_PASSWORD",
	"database.ssl_mode":              "DATABASE_SSL_MODE",
	"database.path":                  "DATABASE_PATH",
	"redis.addr":                     "REDIS_ADDR",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"cache.backend":                  "CACHE_BACKEND",
	"cache.prefix":                   "CACHE_PREFIX",
	"cache.ttl":                      "CACHE_TTL",
	"insights.profile_url_base":      "INSIGHTS_PROFILE_URL_BASE",
	"insights.at_risk_lookback_days": "INSIGHTS_AT_RISK_LOOKBACK_DAYS",
	"textgen.enabled":                "TEXTGEN_ENABLED",
	"textgen.base_url":               "TEXTGEN_BASE_URL",
	"textgen.api_key":                "TEXTGEN_API_KEY",
	"textgen.model":                  "TEXTGEN_MODEL",
	"textgen.timeout":                "TEXTGEN_TIMEOUT",
	"digest.enabled":                 "DIGEST_ENABLED",
	"digest.schedule":                "DIGEST_SCHEDULE",
	"digest.organizations":           "DIGEST_ORGANIZATIONS",
	"vault.url":                      "VAULT_ADDR",
	"vault.token":                    "VAULT_TOKEN",
	"vault.secret_path":              "VAULT_SECRET_PATH",
	"log.level":                      "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "deacon")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "deacon.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.backend", "database")
	v.SetDefault("cache.prefix", "ai_insights_")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.high_water_mark", 50)
	v.SetDefault("cache.evict_count", 20)
	v.SetDefault("cache.max_bytes", 0)
	v.SetDefault("insights.at_risk_lookback_days", 60)
	v.SetDefault("insights.profile_url_base", "/members/")
	v.SetDefault("insights.attendance_history_days", 180)
	v.SetDefault("insights.upcoming_horizon_days", 30)
	v.SetDefault("textgen.enabled", false)
	v.SetDefault("textgen.base_url", "https://api.openai.com/v1")
	v.SetDefault("textgen.model", "gpt-4o-mini")
	v.SetDefault("textgen.max_tokens", 400)
	v.SetDefault("textgen.timeout", 15*time.Second)
	v.SetDefault("textgen.requests_per_second", 1.0)
	v.SetDefault("textgen.burst", 3)
	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.schedule", "0 7 * * 1")
	v.SetDefault("digest.topic", "insights.weekly_digest")
	v.SetDefault("vault.secret_path", "secret/data/deacon-insights")
	v.SetDefault("log.level", "info")
}

// Load loads configuration from .env, config file and environment variables
func Load() (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	setDefaults(viper.GetViper())

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config") // Kubernetes ConfigMap mount path
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return unmarshal(viper.GetViper())
}

// Get returns the current configuration
func Get() *Config {
	cfg, err := unmarshal(viper.GetViper())
	if err != nil {
		panic(fmt.Sprintf("Failed to unmarshal config: %v", err))
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ApplySecrets overlays secret values fetched from vault. Unknown keys are ignored.
func (c *Config) ApplySecrets(secrets map[string]string) {
	if v, ok := secrets["textgen_api_key"]; ok && v != "" {
		c.TextGen.APIKey = v
	}
	if v, ok := secrets["database_password"]; ok && v != "" {
		c.Database.Password = v
	}
	if v, ok := secrets["redis_password"]; ok && v != "" {
		c.Redis.Password = v
	}
}
