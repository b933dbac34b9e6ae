package app

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Issuer claim for tokens and the TOTP provisioning name

	AccessSecret  string // Required: HMAC secret for access tokens
	SessionSecret string // Required: HMAC secret for session tokens
	LoginSecret   string // Required: HMAC secret for MFA login tokens

	AccessTTL  time.Duration // Access token lifetime (default: 1h)
	SessionTTL time.Duration // Session token and row lifetime (default: 168h)
	LoginTTL   time.Duration // MFA login token lifetime (default: 5m)

	DatabaseFile string // Path to SQLite database file (default: ./gatekeep.db)
	RedisAddr    string // Redis address for the cache layer (default: localhost:6379)
	RedisDB      int    // Redis database number (default: 0)
	PepperFile   string // Path to password-hashing pepper file (default: ./pepper)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-session sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer: getEnvOrDefault("GATEKEEP_ISSUER", "gatekeep"),

		AccessSecret:  os.Getenv("GATEKEEP_ACCESS_SECRET"),
		SessionSecret: os.Getenv("GATEKEEP_SESSION_SECRET"),
		LoginSecret:   os.Getenv("GATEKEEP_LOGIN_SECRET"),

		AccessTTL:  getEnvDurationOrDefault("GATEKEEP_ACCESS_TTL", time.Hour),
		SessionTTL: getEnvDurationOrDefault("GATEKEEP_SESSION_TTL", 7*24*time.Hour),
		LoginTTL:   getEnvDurationOrDefault("GATEKEEP_LOGIN_TTL", 5*time.Minute),

		DatabaseFile: getEnvOrDefault("GATEKEEP_DATABASE_FILE", "gatekeep.db"),
		RedisAddr:    getEnvOrDefault("GATEKEEP_REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvIntOrDefault("GATEKEEP_REDIS_DB", 0),
		PepperFile:   getEnvOrDefault("GATEKEEP_PEPPER_FILE", "pepper"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
}

// Validate catches configuration that cannot possibly serve before the
// app wires anything up.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.SessionSecret == "" || c.LoginSecret == "" {
		return errors.New("GATEKEEP_ACCESS_SECRET, GATEKEEP_SESSION_SECRET and GATEKEEP_LOGIN_SECRET must all be set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
