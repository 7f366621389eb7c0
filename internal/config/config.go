package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig holds the HTTP API server settings.
type APIServerConfig struct {
	Host            string        `mapstructure:"HOST"`
	Port            string        `mapstructure:"PORT"`
	ReadTimeout     time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	CORS            CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
// When Enabled is false the token blacklist and the re-request cooldown are not backed by Redis.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"ENABLED"`
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
	PoolSize int    `mapstructure:"POOL_SIZE"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	APIServer  APIServerConfig `mapstructure:"API_SERVER"`
	Kafka      KafkaConfig     `mapstructure:"KAFKA"`
	Database   DatabaseConfig  `mapstructure:"DATABASE"`
	Auth       AuthConfig      `mapstructure:"AUTH"`
	Redis      RedisConfig     `mapstructure:"REDIS"`
	Circle     CircleConfig    `mapstructure:"CIRCLE"`
	Reminder   ReminderConfig  `mapstructure:"REMINDER"`
	RateLimit  RateLimitConfig `mapstructure:"RATE_LIMIT"`
}

// KafkaConfig holds configuration for Kafka.
type KafkaConfig struct {
	Enabled               bool     `mapstructure:"ENABLED"`
	Brokers               []string `mapstructure:"BROKERS"`
	ClientID              string   `mapstructure:"CLIENT_ID"`
	Protocol              string   `mapstructure:"PROTOCOL"`
	ConnectionEventsTopic string   `mapstructure:"CONNECTION_EVENTS_TOPIC"` // lifecycle events consumed by the audit log
	ConsumerGroup         string   `mapstructure:"CONSUMER_GROUP"`
}

// DatabaseConfig holds configuration for the database.
// Type is "postgres" in production; "sqlite" uses Path and is meant for local runs.
type DatabaseConfig struct {
	Type     string `mapstructure:"TYPE"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
	Path     string `mapstructure:"PATH"`
}

// AuthConfig holds configuration for authentication (e.g., JWT).
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
	Issuer       string        `mapstructure:"ISSUER"`
}

// CircleConfig tunes the connection lifecycle.
type CircleConfig struct {
	DefaultLabel      string        `mapstructure:"DEFAULT_LABEL"`
	MaxLabelLength    int           `mapstructure:"MAX_LABEL_LENGTH"`
	RerequestCooldown time.Duration `mapstructure:"REREQUEST_COOLDOWN"` // 0 disables the cooldown after a rejection
}

// ReminderConfig tunes reminder validation.
type ReminderConfig struct {
	RequireConnection bool          `mapstructure:"REQUIRE_CONNECTION"`
	MaxSnooze         time.Duration `mapstructure:"MAX_SNOOZE"`
	DueWindow         time.Duration `mapstructure:"DUE_WINDOW"`
}

// RateLimitConfig limits how often one user may send circle requests.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"REQUESTS_PER_MINUTE"`
	Burst             int `mapstructure:"BURST"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "Remindify")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300)

	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "remindify-api")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")
	v.SetDefault("KAFKA.CONNECTION_EVENTS_TOPIC", "remindify-connection-events")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "remindify-audit-group")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "remindify")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.PATH", "./remindify.db")

	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 24*time.Hour)
	v.SetDefault("AUTH.ISSUER", "remindify")

	v.SetDefault("REDIS.ENABLED", true)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)

	v.SetDefault("CIRCLE.DEFAULT_LABEL", "Friend")
	v.SetDefault("CIRCLE.MAX_LABEL_LENGTH", 50)
	v.SetDefault("CIRCLE.REREQUEST_COOLDOWN", time.Duration(0))

	v.SetDefault("REMINDER.REQUIRE_CONNECTION", false)
	v.SetDefault("REMINDER.MAX_SNOOZE", 24*time.Hour)
	v.SetDefault("REMINDER.DUE_WINDOW", 5*time.Minute)

	v.SetDefault("RATE_LIMIT.REQUESTS_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT.BURST", 5)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// CIRCLE_DEFAULT_LABEL overrides CIRCLE.DEFAULT_LABEL, and so on.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// defaults plus environment are enough to run
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
