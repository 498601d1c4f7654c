package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	SSLMode       string
	RedisHost     string
	RedisPort     string
	NatsHost      string
	NatsPort      string
	NatsEnabled   string
	ApiPort       string
	ApiEnabled    string
	WebhookSecret string
	SweepInterval time.Duration
}

// New loads and validates configuration from environment variables.
// HTTP server and NATS are optional: if FABLE_API_ENABLED != "true",
// ApiAddr() returns an error and the HTTP server simply won't start; the
// same applies to NATS via NatsAddr().
//
// The webhook secret is deliberately not validated here — its absence is a
// runtime ConfigurationError on the webhook path, not a boot failure, so a
// deployment without billing still serves redemptions.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("FABLE_POSTGRES_USER"),
		DBPass:        os.Getenv("FABLE_POSTGRES_PASSWORD"),
		DBHost:        os.Getenv("FABLE_POSTGRES_HOST"),
		DBPort:        os.Getenv("FABLE_POSTGRES_PORT"),
		DBName:        os.Getenv("FABLE_POSTGRES_DB"),
		SSLMode:       os.Getenv("FABLE_POSTGRES_SSLMODE"),
		RedisHost:     os.Getenv("FABLE_REDIS_HOST"),
		RedisPort:     os.Getenv("FABLE_REDIS_PORT"),
		NatsHost:      os.Getenv("FABLE_NATS_HOST"),
		NatsPort:      os.Getenv("FABLE_NATS_PORT"),
		NatsEnabled:   os.Getenv("FABLE_NATS_ENABLED"),
		ApiPort:       os.Getenv("FABLE_API_PORT"),
		ApiEnabled:    os.Getenv("FABLE_API_ENABLED"),
		WebhookSecret: os.Getenv("FABLE_WEBHOOK_SECRET"),
		SweepInterval: getEnvDuration("FABLE_SWEEP_INTERVAL", 24*time.Hour),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: FABLE_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: FABLE_REDIS_HOST/PORT")
	}

	if cfg.NatsEnabled == "true" && (cfg.NatsHost == "" || cfg.NatsPort == "") {
		return nil, fmt.Errorf("missing required env for nats: FABLE_NATS_HOST/PORT")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS URL if the bus is enabled.
// Returns an error if FABLE_NATS_ENABLED != "true" — callers should run
// without a bus.
func (c *Config) NatsAddr() (string, error) {
	if c.NatsEnabled != "true" {
		return "", fmt.Errorf("NATS bus is disabled (FABLE_NATS_ENABLED != true)")
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort), nil
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if FABLE_API_ENABLED != "true" — callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("FABLE_API_PORT is required when FABLE_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (FABLE_API_ENABLED != true)")
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
