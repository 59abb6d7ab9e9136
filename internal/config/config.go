package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Security      SecurityConfig      `mapstructure:"security"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// AlertingConfig tunes the evaluation engine.
type AlertingConfig struct {
	EvaluationInterval       time.Duration `mapstructure:"evaluation_interval"`
	MaxConcurrentEvaluations int           `mapstructure:"max_concurrent_evaluations"`
	SourceTimeout            time.Duration `mapstructure:"source_timeout"`
	AlertRetention           time.Duration `mapstructure:"alert_retention"`
	DegradedErrorRate        float64       `mapstructure:"degraded_error_rate"`
	SeedFile                 string        `mapstructure:"seed_file"`
}

// NotificationsConfig tunes delivery retries and circuit breaking.
type NotificationsConfig struct {
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	BackoffFactor   float64       `mapstructure:"backoff_factor"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCoolDown time.Duration `mapstructure:"breaker_cool_down"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

type SecurityConfig struct {
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	EnableCORS     bool            `mapstructure:"enable_cors"`
	RateLimiting   RateLimitConfig `mapstructure:"rate_limiting"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("database.migrations_path", "MIGRATIONS_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("alerting.seed_file", "ALERTING_SEED_FILE")
	viper.BindEnv("security.allowed_origins", "ALLOWED_ORIGINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Alerting.EvaluationInterval <= 0 {
		errs = append(errs, "alerting.evaluation_interval must be positive")
	}
	if c.Alerting.MaxConcurrentEvaluations <= 0 {
		errs = append(errs, "alerting.max_concurrent_evaluations must be positive")
	}
	if c.Notifications.MaxAttempts <= 0 {
		errs = append(errs, "notifications.max_attempts must be positive")
	}
	if c.Notifications.BreakerFailures <= 0 {
		errs = append(errs, "notifications.breaker_failures must be positive")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Sprintf("server.mode %q is not one of debug, release, test", c.Server.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/alerting.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	viper.SetDefault("alerting.evaluation_interval", "10s")
	viper.SetDefault("alerting.max_concurrent_evaluations", 10)
	viper.SetDefault("alerting.source_timeout", "2s")
	viper.SetDefault("alerting.alert_retention", "168h")
	viper.SetDefault("alerting.degraded_error_rate", 0.1)

	viper.SetDefault("notifications.send_timeout", "10s")
	viper.SetDefault("notifications.http_timeout", "5s")
	viper.SetDefault("notifications.max_attempts", 3)
	viper.SetDefault("notifications.initial_delay", "500ms")
	viper.SetDefault("notifications.max_delay", "5s")
	viper.SetDefault("notifications.backoff_factor", 2.0)
	viper.SetDefault("notifications.breaker_failures", 5)
	viper.SetDefault("notifications.breaker_cool_down", "30s")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "alerting")

	viper.SetDefault("security.allowed_origins", []string{"*"})
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.rate_limiting.enabled", false)
	viper.SetDefault("security.rate_limiting.requests_per_minute", 300)
}
