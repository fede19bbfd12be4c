package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is built once at process start and passed by reference to every
// component. There is no ambient global configuration state.
type Config struct {
	Database DatabaseConfig `validate:"required"`
	Dataset  string         `validate:"required"`
	Feed     FeedConfig
	Recorder RecorderConfig
	API      APIConfig
	NATS     NATSConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
}

// FeedConfig describes the realtime GTFS-RT JSON feed. The poller is
// disabled when URL is empty.
type FeedConfig struct {
	URL          string        `validate:"omitempty,url"`
	APIKey       string
	PollInterval time.Duration `validate:"gt=0"`
}

type RecorderConfig struct {
	Interval  time.Duration `validate:"gt=0"`
	DueWindow time.Duration `validate:"gt=0"`
}

type APIConfig struct {
	Addr           string `validate:"required"`
	AllowedOrigins []string
}

// NATSConfig enables delay-sample event publishing when URL is set.
type NATSConfig struct {
	URL         string `validate:"omitempty,url"`
	SubjectBase string
}

type LoggingConfig struct {
	Level    string
	FilePath string `validate:"required"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tripwatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Dataset: getEnv("GTFS_DATASET", "default"),
		Feed: FeedConfig{
			URL:          getEnv("GTFS_RT_URL", ""),
			APIKey:       getEnv("GTFS_RT_API_KEY", ""),
			PollInterval: getDurationEnv("GTFS_RT_POLL_INTERVAL", 30*time.Second),
		},
		Recorder: RecorderConfig{
			Interval:  getDurationEnv("RECORDER_INTERVAL", 5*time.Minute),
			DueWindow: getDurationEnv("RECORDER_DUE_WINDOW", 20*time.Minute),
		},
		API: APIConfig{
			Addr:           getEnv("API_ADDR", ":8080"),
			AllowedOrigins: []string{getEnv("API_ALLOWED_ORIGIN", "*")},
		},
		NATS: NATSConfig{
			URL:         getEnv("NATS_URL", ""),
			SubjectBase: getEnv("NATS_SUBJECT_BASE", "tripwatch.delays"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "tripwatch.log"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
