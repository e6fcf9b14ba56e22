package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/haven-automation/haven-hub/internal/core/backup"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Backup    backup.Config   `mapstructure:"backup"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	History   HistoryConfig   `mapstructure:"history"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
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

type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	TokenExpiry int    `mapstructure:"token_expiry"`
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

// MQTTConfig controls the optional MQTT state bridge
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Discovery   bool   `mapstructure:"discovery"`
}

// HistoryConfig controls the optional InfluxDB state history recorder
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// DiscoveryConfig controls mDNS device discovery
type DiscoveryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// WebhookConfig controls inbound webhook handling
type WebhookConfig struct {
	ExternalURL string `mapstructure:"external_url"`
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("mqtt.broker", "MQTT_BROKER")
	viper.BindEnv("mqtt.username", "MQTT_USERNAME")
	viper.BindEnv("mqtt.password", "MQTT_PASSWORD")
	viper.BindEnv("history.url", "INFLUXDB_URL")
	viper.BindEnv("history.token", "INFLUXDB_TOKEN")
	viper.BindEnv("webhook.external_url", "WEBHOOK_EXTERNAL_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		errors = append(errors, "database.path is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errors = append(errors, "auth.jwt_secret is required when auth is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errors = append(errors, "mqtt.broker is required when MQTT is enabled")
	}
	if c.History.Enabled {
		if c.History.URL == "" {
			errors = append(errors, "history.url is required when history is enabled")
		}
		if c.History.Bucket == "" {
			errors = append(errors, "history.bucket is required when history is enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.path", "./data/haven.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.token_expiry", 3600)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// WebSocket defaults
	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	// Backup defaults
	viper.SetDefault("backup.enabled", true)
	viper.SetDefault("backup.schedule", "0 3 * * *")
	viper.SetDefault("backup.directory", "./data/backups")
	viper.SetDefault("backup.keep", 7)

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.client_id", "haven-hub")
	viper.SetDefault("mqtt.topic_prefix", "haven")
	viper.SetDefault("mqtt.discovery", true)

	// History defaults
	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.org", "haven")
	viper.SetDefault("history.bucket", "haven_states")

	// Discovery defaults
	viper.SetDefault("discovery.enabled", true)
}
