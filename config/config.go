package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinJWTSecretLength is the minimum accepted HMAC secret length in bytes
const MinJWTSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	OAuth         OAuthConfig
	Frontend      FrontendConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	RunMigrations    bool
}

// AuthConfig holds token, credential and session cache settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string

	IdentityTTL    time.Duration // unified session identity token
	OTPExchangeTTL time.Duration // narrow token returned by OTP signup verification
	ContextTTL     time.Duration
	LegacyTTL      time.Duration
	OTPTTL         time.Duration

	Argon2Memory      uint32 // KiB
	Argon2Iterations  uint32
	Argon2Parallelism uint8

	SessionCacheTTL           time.Duration
	SessionCacheSweepInterval time.Duration
	SessionCacheMaxSize       int

	OTPRequestsPerMinute int
	OTPRequestBurst      int
	OTPMaxPerEmail       int // 0 disables the per-email cap
	OTPEmailWindow       time.Duration
}

// OAuthConfig holds third-party login provider configuration
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// GoogleEnabled reports whether Google login is configured
func (c *OAuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// FrontendConfig holds browser-facing settings
type FrontendConfig struct {
	URL            string   // post-login redirect target
	AllowedOrigins []string // CORS
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Auth: AuthConfig{
			JWTSecret:                 getEnv("AUTH_JWT_SECRET", ""),
			Issuer:                    getEnv("AUTH_ISSUER", "venture-hub"),
			IdentityTTL:               getEnvAsDuration("AUTH_IDENTITY_TTL", 7*24*time.Hour),
			OTPExchangeTTL:            getEnvAsDuration("AUTH_OTP_EXCHANGE_TTL", 10*time.Minute),
			ContextTTL:                getEnvAsDuration("AUTH_CONTEXT_TTL", 4*time.Hour),
			LegacyTTL:                 getEnvAsDuration("AUTH_LEGACY_TTL", 4*time.Hour),
			OTPTTL:                    getEnvAsDuration("AUTH_OTP_TTL", 10*time.Minute),
			Argon2Memory:              uint32(getEnvAsInt("AUTH_ARGON2_MEMORY_KIB", 64*1024)),
			Argon2Iterations:          uint32(getEnvAsInt("AUTH_ARGON2_ITERATIONS", 3)),
			Argon2Parallelism:         uint8(getEnvAsInt("AUTH_ARGON2_PARALLELISM", 2)),
			SessionCacheTTL:           getEnvAsDuration("SESSION_CACHE_TTL", 5*time.Minute),
			SessionCacheSweepInterval: getEnvAsDuration("SESSION_CACHE_SWEEP_INTERVAL", time.Minute),
			SessionCacheMaxSize:       getEnvAsInt("SESSION_CACHE_MAX_SIZE", 10000),
			OTPRequestsPerMinute:      getEnvAsInt("OTP_REQUESTS_PER_MINUTE", 5),
			OTPRequestBurst:           getEnvAsInt("OTP_REQUEST_BURST", 5),
			OTPMaxPerEmail:            getEnvAsInt("OTP_MAX_PER_EMAIL", 5),
			OTPEmailWindow:            getEnvAsDuration("OTP_EMAIL_WINDOW", 15*time.Minute),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		},
		Frontend: FrontendConfig{
			URL:            getEnv("FRONT_END_URL", "http://localhost:5173"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Every signing and verifying path depends on the secret.
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", MinJWTSecretLength)
	}

	ttls := map[string]time.Duration{
		"AUTH_IDENTITY_TTL":     c.Auth.IdentityTTL,
		"AUTH_OTP_EXCHANGE_TTL": c.Auth.OTPExchangeTTL,
		"AUTH_CONTEXT_TTL":      c.Auth.ContextTTL,
		"AUTH_LEGACY_TTL":       c.Auth.LegacyTTL,
		"AUTH_OTP_TTL":          c.Auth.OTPTTL,
		"SESSION_CACHE_TTL":     c.Auth.SessionCacheTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Auth.Argon2Iterations == 0 || c.Auth.Argon2Parallelism == 0 {
		return fmt.Errorf("argon2 iterations and parallelism must be at least 1")
	}
	if c.Auth.Argon2Memory < 8*uint32(c.Auth.Argon2Parallelism) {
		return fmt.Errorf("argon2 memory must be at least 8 KiB per thread")
	}

	if c.IsProduction() && c.OAuth.GoogleClientID != "" && c.OAuth.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns a postgres:// URL for golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		ConnectionString: getEnv("DATABASE_URL", ""),
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		RunMigrations:    getEnvAsBool("DB_RUN_MIGRATIONS", true),
	}
	if cfg.ConnectionString != "" {
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "dev")
	cfg.Password = getEnv("DB_PASSWORD", "dev_password")
	cfg.Database = getEnv("DB_NAME", "venture_hub")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
