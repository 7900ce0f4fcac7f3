package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Roles       RolesConfig       `mapstructure:"roles"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	Mode           string        `mapstructure:"mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	BaseDir       string        `mapstructure:"base_dir"`
	BaseURL       string        `mapstructure:"base_url"`
	OrphanGrace   time.Duration `mapstructure:"orphan_grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RolesConfig points at an optional reviewer role policy file
type RolesConfig struct {
	PolicyPath string `mapstructure:"policy_path"`
}

// NotifyConfig holds the outbound email trigger; an empty endpoint disables it
type NotifyConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds change-event fan-out configuration; an empty URL disables it
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

// IdempotencyConfig holds the idempotency key store configuration
type IdempotencyConfig struct {
	Path          string        `mapstructure:"path"`
	TTL           time.Duration `mapstructure:"ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath (optional), a .env file in the working directory
// (optional) and DASHBOARD_* environment variables, in increasing priority
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "data/dashboard.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("storage.base_dir", "data/files")
	v.SetDefault("storage.base_url", "/files")
	v.SetDefault("storage.orphan_grace", time.Hour)
	v.SetDefault("storage.sweep_interval", 6*time.Hour)

	v.SetDefault("auth.issuer", "ieeeucsd-dashboard")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("notify.timeout", 5*time.Second)

	v.SetDefault("redis.channel", "dashboard.records")

	v.SetDefault("idempotency.path", "data/idempotency.db")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.prune_interval", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the unprefixed secret names used by deployments
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("auth.jwt_secret", "DASHBOARD_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("redis.url", "DASHBOARD_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("notify.endpoint", "DASHBOARD_NOTIFY_ENDPOINT", "EMAIL_NOTIFY_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.OrphanGrace <= 0 {
		return fmt.Errorf("storage.orphan_grace must be positive")
	}
	if c.Idempotency.Path == "" {
		return fmt.Errorf("idempotency.path is required")
	}
	return nil
}
