// Package config loads gateway configuration from files, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
)

const (
	ModeOpen       = "open"
	ModeCommercial = "commercial"

	MinFetchTimeoutSeconds = 12
	MaxFetchTimeoutSeconds = 15
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Retention RetentionConfig `mapstructure:"retention"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

type ServerConfig struct {
	Port          string `mapstructure:"port"`
	Environment   string `mapstructure:"environment"`
	Mode          string `mapstructure:"mode"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
	UpgradeURL    string `mapstructure:"upgrade_url"`
}

// An empty Host selects the in-process counter store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// APIKeys entries are "key" or "key:tier". AdminEmail and AdminPassword
// seed the first admin user when the database has none with that email.
type AuthConfig struct {
	APIKeys        []string `mapstructure:"api_keys"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	JWTExpiryHours int      `mapstructure:"jwt_expiry_hours"`
	AdminEmail     string   `mapstructure:"admin_email"`
	AdminPassword  string   `mapstructure:"admin_password"`
}

type FetchConfig struct {
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
	MaxBodyBytes        int64  `mapstructure:"max_body_bytes"`
	AllowPrivateTargets bool   `mapstructure:"allow_private_targets"`
	BlockPrivateDial    bool   `mapstructure:"block_private_dial"`
	SitemapFromRobots   bool   `mapstructure:"sitemap_from_robots"`
	MaxRobotsSitemaps   int    `mapstructure:"max_robots_sitemaps"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

type RetentionConfig struct {
	FetchLogDays    int    `mapstructure:"fetch_log_days"`
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
	FetchLogBuffer  int    `mapstructure:"fetch_log_buffer"`
}

type BreakerConfig struct {
	MaxFailures    int `mapstructure:"max_failures"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Load reads configuration from path (or config.{json,yaml} in the working
// directory when path is empty) overlaid with GATEWAY_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fetch-gateway/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.mode", ModeCommercial)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.upgrade_url", "https://fetchgateway.dev/pricing")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry_hours", 24)
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("fetch.timeout_seconds", 12)
	v.SetDefault("fetch.user_agent", "FetchGateway/1.0 (+https://fetchgateway.dev/bot)")
	v.SetDefault("fetch.max_body_bytes", 5*1024*1024)
	v.SetDefault("fetch.allow_private_targets", false)
	v.SetDefault("fetch.block_private_dial", false)
	v.SetDefault("fetch.sitemap_from_robots", true)
	v.SetDefault("fetch.max_robots_sitemaps", 3)
	v.SetDefault("logging.development", false)
	v.SetDefault("retention.fetch_log_days", 30)
	v.SetDefault("retention.cleanup_schedule", "@daily")
	v.SetDefault("retention.fetch_log_buffer", 1000)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Server.Mode != ModeOpen && c.Server.Mode != ModeCommercial {
		return fmt.Errorf("server.mode must be %q or %q, got %q", ModeOpen, ModeCommercial, c.Server.Mode)
	}
	if c.Fetch.TimeoutSeconds < MinFetchTimeoutSeconds || c.Fetch.TimeoutSeconds > MaxFetchTimeoutSeconds {
		return fmt.Errorf("fetch.timeout_seconds must be between %d and %d", MinFetchTimeoutSeconds, MaxFetchTimeoutSeconds)
	}
	if c.Fetch.MaxRobotsSitemaps < 1 || c.Fetch.MaxRobotsSitemaps > 10 {
		return fmt.Errorf("fetch.max_robots_sitemaps must be between 1 and 10")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0")
	}
	if c.IsCommercial() && len(c.Auth.APIKeys) == 0 && c.Database.DSN == "" {
		return fmt.Errorf("commercial mode needs auth.api_keys or database.dsn")
	}
	if c.AdminEnabled() && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters when database.dsn is set")
	}
	return nil
}

func (c Config) IsCommercial() bool {
	return c.Server.Mode == ModeCommercial
}

// The admin plane needs stored keys and users, so it only runs in commercial
// mode with a database
func (c Config) AdminEnabled() bool {
	return c.IsCommercial() && c.Database.DSN != ""
}

func (c Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Returns host:port for the Redis client
func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Returns the deadline shared by all candidates of one sitemap probe
func (f FetchConfig) ProbeTimeout() time.Duration {
	return 2 * f.Timeout()
}

// KeyTiers parses auth.api_keys into a key -> tier table. A suffix that is not
// a known tier name is treated as part of the key.
func (a AuthConfig) KeyTiers() map[string]models.Tier {
	keys := make(map[string]models.Tier, len(a.APIKeys))
	for _, entry := range a.APIKeys {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, tier := entry, models.TierBasic
		if i := strings.LastIndex(entry, ":"); i > 0 {
			if t, ok := models.LookupTier(entry[i+1:]); ok {
				key, tier = entry[:i], t
			}
		}
		keys[key] = tier
	}
	return keys
}
