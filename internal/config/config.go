package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CONTENTGEN"

type Config struct {
	DatabaseURL   string           `mapstructure:"database_url"`
	RedisURL      string           `mapstructure:"redis_url"`
	JWTSecret     string           `mapstructure:"jwt_secret" validate:"required,min=8"`
	ServerPort    string           `mapstructure:"server_port" validate:"required,numeric"`
	LogLevel      string           `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ProvidersFile string           `mapstructure:"providers_file"`
	Database      DatabaseConfig   `mapstructure:"database"`
	Generation    GenerationConfig `mapstructure:"generation"`
	Cache         CacheConfig      `mapstructure:"cache"`
	Routing       RoutingConfig    `mapstructure:"routing"`
}

// DatabaseConfig tunes the Postgres connection pool.
type DatabaseConfig struct {
	MaxConns          int32         `mapstructure:"max_conns" validate:"gt=0"`
	MinConns          int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" validate:"gte=0"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" validate:"gte=0"`
}

type GenerationConfig struct {
	OverallTimeout    time.Duration `mapstructure:"overall_timeout" validate:"gt=0"`
	SubRequestTimeout time.Duration `mapstructure:"sub_request_timeout" validate:"gt=0"`
	VideoTimeout      time.Duration `mapstructure:"video_timeout" validate:"gt=0"`
	FirstAttemptShare float64       `mapstructure:"first_attempt_share" validate:"gt=0,lte=1"`
}

type CacheConfig struct {
	Capacity   int           `mapstructure:"capacity" validate:"gt=0"`
	BlogTTL    time.Duration `mapstructure:"blog_ttl" validate:"gte=0"`
	ImageTTL   time.Duration `mapstructure:"image_ttl" validate:"gte=0"`
	VideoTTL   time.Duration `mapstructure:"video_ttl" validate:"gte=0"`
	PodcastTTL time.Duration `mapstructure:"podcast_ttl" validate:"gte=0"`
	RedisTier  bool          `mapstructure:"redis_tier"`
}

type RoutingConfig struct {
	FailureThreshold        int           `mapstructure:"failure_threshold" validate:"gt=0"`
	FailureWindow           time.Duration `mapstructure:"failure_window" validate:"gt=0"`
	Cooldown                time.Duration `mapstructure:"cooldown" validate:"gt=0"`
	LatencyPenaltyPerSecond float64       `mapstructure:"latency_penalty_per_second" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "change-me-please")
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("providers_file", "")

	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check_period", time.Minute)

	v.SetDefault("generation.overall_timeout", 90*time.Second)
	v.SetDefault("generation.sub_request_timeout", 45*time.Second)
	v.SetDefault("generation.video_timeout", 80*time.Second)
	v.SetDefault("generation.first_attempt_share", 0.6)

	v.SetDefault("cache.capacity", 1024)
	v.SetDefault("cache.blog_ttl", time.Hour)
	v.SetDefault("cache.image_ttl", 24*time.Hour)
	v.SetDefault("cache.video_ttl", 24*time.Hour)
	v.SetDefault("cache.podcast_ttl", 6*time.Hour)
	v.SetDefault("cache.redis_tier", false)

	v.SetDefault("routing.failure_threshold", 3)
	v.SetDefault("routing.failure_window", time.Minute)
	v.SetDefault("routing.cooldown", 30*time.Second)
	v.SetDefault("routing.latency_penalty_per_second", 0.05)
}

// Load reads .env (if present) and CONTENTGEN_* environment variables on top of the defaults.
// Nested keys map to env names with dots replaced by underscores, e.g. CONTENTGEN_CACHE_CAPACITY.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keep the unprefixed names the gateway has always read.
	for key, env := range map[string]string{
		"database_url": "DATABASE_URL",
		"redis_url":    "REDIS_URL",
		"jwt_secret":   "JWT_SECRET",
		"server_port":  "SERVER_PORT",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
