package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageOxiDB = "oxidb"
	StorageS3    = "s3"
)

type Config struct {
	HTTPAddr  string
	Env       string
	LogLevel  string
	GelfAddr  string
	PublicURL string

	OxiDBHost string
	OxiDBPort int
	PoolSize  int

	JWTSecret  string
	SessionTTL time.Duration
	AdminEmail string
	AdminPass  string

	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	S3AccessKey     string
	S3SecretKey     string

	GoogleClientID     string
	GoogleClientSecret string

	AMQPURL      string
	AMQPExchange string

	AuthRateLimit float64
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() *Config {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		HTTPAddr:  getEnv("DMS_ADDR", ":8080"),
		Env:       getEnv("DMS_ENV", "production"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		GelfAddr:  getEnv("GELF_ADDR", ""),
		PublicURL: strings.TrimRight(getEnv("DMS_PUBLIC_URL", "http://localhost:8080"), "/"),

		OxiDBHost: getEnv("OXIDB_HOST", "127.0.0.1"),
		OxiDBPort: getEnvInt("OXIDB_PORT", 4444),
		PoolSize:  getEnvInt("DMS_POOL_SIZE", 3),

		JWTSecret:  getEnv("DMS_JWT_SECRET", "mixedby-dev-secret-change-me"),
		SessionTTL: getEnvDuration("DMS_SESSION_TTL", 24*time.Hour),
		AdminEmail: getEnv("DMS_ADMIN_EMAIL", "admin@mixedby.local"),
		AdminPass:  getEnv("DMS_ADMIN_PASS", "admin123"),

		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageOxiDB)),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PublicBaseURL: strings.TrimRight(getEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "submissions"),

		AuthRateLimit: getEnvFloat("AUTH_RATE_LIMIT", 5),
	}
}

// Validate reports settings that cannot produce a working server.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case StorageOxiDB:
	case StorageS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("DMS_JWT_SECRET must not be empty"))
	}
	if c.PoolSize < 1 {
		errs = append(errs, errors.New("DMS_POOL_SIZE must be at least 1"))
	}
	return errors.Join(errs...)
}

// Development reports whether human-readable logs were requested.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// GoogleEnabled reports whether federated sign-in with Google is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
