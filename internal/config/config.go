package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModeLive       = "live"
	ModeSimulation = "simulation"

	minJWTSecretLength = 32
)

type Config struct {
	App      AppConfig      `yaml:"app" mapstructure:"app"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

type AppConfig struct {
	Environment string `yaml:"environment" mapstructure:"environment"`
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
}

// SourceConfig selects where raw metrics come from. Mode is fixed for the
// lifetime of the process.
type SourceConfig struct {
	Mode           string `yaml:"mode" mapstructure:"mode"`
	URL            string `yaml:"url" mapstructure:"url"`
	Token          string `yaml:"token" mapstructure:"token"`
	SiteID         string `yaml:"site_id" mapstructure:"site_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RateLimit      int    `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
}

type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"db_name" mapstructure:"db_name"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type PipelineConfig struct {
	BackfillDays   int    `yaml:"backfill_days" mapstructure:"backfill_days"`
	Schedule       string `yaml:"schedule" mapstructure:"schedule"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
}

type APIConfig struct {
	Host             string   `yaml:"host" mapstructure:"host"`
	Port             int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	TriggerRateLimit int      `yaml:"trigger_rate_limit" mapstructure:"trigger_rate_limit"` // runs per minute per client
	TrustedProxies   []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
	JWTSecret        string   `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// TriggerAuthEnabled reports whether POST /pipeline/run requires a bearer token.
func (c APIConfig) TriggerAuthEnabled() bool {
	return c.JWTSecret != ""
}

// Timeout is the bound applied to every outbound analytics request.
func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c SourceConfig) IsLive() bool {
	return c.Mode == ModeLive
}

func (c PipelineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Source.Mode = strings.ToLower(getEnv("ETL_MODE", config.Source.Mode))
	config.Source.URL = getEnv("MATOMO_URL", config.Source.URL)
	config.Source.Token = getEnv("MATOMO_TOKEN", config.Source.Token)
	config.Source.SiteID = getEnv("MATOMO_SITE_ID", config.Source.SiteID)

	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.User = getEnv("DB_USER", config.Database.User)
	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)
	config.Database.DBName = getEnv("DB_NAME", config.Database.DBName)
	config.Database.Port = getEnv("DB_PORT", config.Database.Port)
	config.Redis.Password = getEnv("REDIS_PASSWORD", config.Redis.Password)
	config.API.JWTSecret = getEnv("API_JWT_SECRET", config.API.JWTSecret)

	config.Pipeline.BackfillDays = getEnvInt("BACKFILL_DAYS", config.Pipeline.BackfillDays)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("source.mode", ModeSimulation)
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.rate_limit", 5)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 5)

	v.SetDefault("pipeline.backfill_days", 7)
	v.SetDefault("pipeline.schedule", "0 3 * * *")
	v.SetDefault("pipeline.lock_ttl_seconds", 600)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.trigger_rate_limit", 6)
}

func (c *Config) Validate() error {
	if c.Source.Mode != ModeLive && c.Source.Mode != ModeSimulation {
		return fmt.Errorf("source.mode must be %q or %q, got %q", ModeLive, ModeSimulation, c.Source.Mode)
	}

	if c.Source.IsLive() {
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required in live mode")
		}

		if c.Source.Token == "" {
			return fmt.Errorf("source.token is required in live mode")
		}

		if c.Source.SiteID == "" {
			return fmt.Errorf("source.site_id is required in live mode")
		}
	}

	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be positive")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	if c.Database.Port == "" {
		return fmt.Errorf("database.port is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database.db_name is required")
	}

	if c.Pipeline.BackfillDays <= 0 {
		return fmt.Errorf("pipeline.backfill_days must be positive")
	}

	// Redis only guards against overlapping runs; without it runs are unguarded.
	if c.App.Environment == "production" && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required for production")
	}

	if c.App.Environment == "production" && len(c.API.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("api.jwt_secret of at least %d characters is required for production", minJWTSecretLength)
	}

	return nil
}

func (c *Config) SafeString() string {
	return fmt.Sprintf(`Config:
		Environment: %s
		Log Level: %s

		Source:
			Mode: %s
			URL: %s
			Token: %s
			Site ID: %s
			Timeout: %ds
			Rate Limit: %d req/s

		Database:
			Host: %s:%s
			User: %s
			Database: %s
			SSL Mode: %s
			Max Connections: %d

		Redis:
			Host: %s:%s
			Database: %d

		Pipeline:
			Backfill Days: %d
			Schedule: %s
			Lock TTL: %ds

		API:
			Listen: %s:%d
			Trigger Rate Limit: %d/min
			Trusted Proxies: %s
			JWT Secret: %s
		`,
		c.App.Environment,
		c.App.LogLevel,
		c.Source.Mode,
		c.Source.URL,
		maskSecret(c.Source.Token),
		c.Source.SiteID,
		c.Source.TimeoutSeconds,
		c.Source.RateLimit,
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.DBName,
		c.Database.SSLMode,
		c.Database.MaxConns,
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
		c.Pipeline.BackfillDays,
		c.Pipeline.Schedule,
		c.Pipeline.LockTTLSeconds,
		c.API.Host,
		c.API.Port,
		c.API.TriggerRateLimit,
		strings.Join(c.API.TrustedProxies, ", "),
		maskSecret(c.API.JWTSecret),
	)
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return i
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}

	length := len(s)
	if length <= 8 {
		return strings.Repeat("*", length)
	}

	return s[:4] + "..." + s[length-4:]
}
