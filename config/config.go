package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Provider ProviderConfig
	Pending  PendingConfig
	Archive  ArchiveConfig
	Clients  []ClientCredential
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/payments?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds service-token signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// ProviderConfig holds payment-provider API settings.
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	WebhookSecret  string        // HMAC-SHA256 shared secret; empty disables signature checks
	RequestTimeout time.Duration // upper bound per provider API call
	StoreID        string        // provider-side store/merchant identifier
}

// PendingConfig holds pending-order index settings.
type PendingConfig struct {
	TTL           time.Duration // how long an unconfirmed order is held before TIMEOUT
	Backend       string        // "memory" (single instance) or "redis" (shared)
	VerifyGateTTL time.Duration // minimum interval between /verify provider queries per order
}

// ArchiveConfig holds S3 settings for the webhook dead-letter archive.
type ArchiveConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string // empty disables archiving
}

// ClientCredential is an allowed service client for the token endpoint.
// Secrets are stored bcrypt-hashed, never in the clear.
type ClientCredential struct {
	ID         string
	SecretHash string
	Scope      string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	clients, err := parseClients(getEnv("AUTH_CLIENTS", ""))
	if err != nil {
		return nil, fmt.Errorf("parse AUTH_CLIENTS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/payments?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "payments"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Provider: ProviderConfig{
			BaseURL:        getEnv("PROVIDER_BASE_URL", "https://api.lemonsqueezy.com/v1"),
			APIKey:         getEnv("PROVIDER_API_KEY", ""),
			WebhookSecret:  getEnv("PROVIDER_WEBHOOK_SECRET", ""),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 10*time.Second),
			StoreID:        getEnv("PROVIDER_STORE_ID", ""),
		},
		Pending: PendingConfig{
			TTL:           getEnvDuration("PENDING_ORDER_TTL", 15*time.Minute),
			Backend:       getEnv("PENDING_INDEX", "memory"),
			VerifyGateTTL: getEnvDuration("VERIFY_GATE_TTL", 5*time.Minute),
		},
		Archive: ArchiveConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("AWS_S3_WEBHOOK_ARCHIVE_BUCKET", ""),
		},
		Clients: clients,
	}
	return cfg, nil
}

// parseClients parses AUTH_CLIENTS: comma-separated "client_id:bcrypt_hash[:scope]" entries.
// Bcrypt hashes contain '$' but never ':' so colon is a safe field separator.
func parseClients(s string) ([]ClientCredential, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []ClientCredential
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("invalid client entry %q (want client_id:secret_hash[:scope])", part)
		}
		c := ClientCredential{ID: fields[0], SecretHash: fields[1], Scope: "payments"}
		if len(fields) == 3 && fields[2] != "" {
			c.Scope = fields[2]
		}
		out = append(out, c)
	}
	return out, nil
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
