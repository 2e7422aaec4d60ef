package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/velist/velist/internal/models"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreNone     = "none"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
	Redis    RedisConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	URL               string
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AppURL         string
	AppVersion     string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AuthRateLimit  int
}

type AuthConfig struct {
	JWTSecret     string
	EncryptionKey string
	// EncryptionKeyFallback is set when EncryptionKey was borrowed from JWTSecret.
	EncryptionKeyFallback  bool
	SessionLifetime        time.Duration
	RememberLifetime       time.Duration
	PendingTwoFactorTTL    time.Duration
	OAuthStateTTL          time.Duration
	BcryptCost             int
	TOTPIssuer             string
	CookieDomain           string
	SessionStore           string
	SessionCleanupInterval time.Duration
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Enabled reports whether the Google provider is configured.
func (c OAuthConfig) Enabled() bool {
	return c.GoogleClientID != ""
}

type RedisConfig struct {
	URL string
}

type EmailConfig struct {
	From      string
	AWSRegion string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", models.ErrConfiguration)
	}

	env := getEnv("ENV", EnvDevelopment)
	appURL := strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/")

	cfg := &Config{
		Database: DatabaseConfig{
			URL:               getEnv("DATABASE_URL", ""),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "velist"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AppURL:         appURL,
			AppVersion:     getEnv("APP_VERSION", "1.0.0"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT", 20),
		},
		Auth: AuthConfig{
			JWTSecret:              jwtSecret,
			EncryptionKey:          getEnv("TWO_FACTOR_ENCRYPTION_KEY", ""),
			SessionLifetime:        getEnvAsDuration("SESSION_LIFETIME", 24*time.Hour),
			RememberLifetime:       getEnvAsDuration("REMEMBER_LIFETIME", 30*24*time.Hour),
			PendingTwoFactorTTL:    getEnvAsDuration("PENDING_2FA_TTL", 5*time.Minute),
			OAuthStateTTL:          getEnvAsDuration("OAUTH_STATE_TTL", 10*time.Minute),
			BcryptCost:             getEnvAsInt("BCRYPT_COST", 10),
			TOTPIssuer:             getEnv("TOTP_ISSUER", "Velist"),
			CookieDomain:           getEnv("COOKIE_DOMAIN", ""),
			SessionStore:           strings.ToLower(getEnv("SESSION_STORE", SessionStorePostgres)),
			SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Email: EmailConfig{
			From:      getEnv("EMAIL_FROM", ""),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if cfg.Database.URL == "" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL or DB_PASSWORD is required", models.ErrConfiguration)
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := resolveEncryptionKey(&cfg.Auth, env); err != nil {
		return nil, err
	}

	if err := validateOAuth(&cfg.OAuth, env, appURL); err != nil {
		return nil, err
	}

	switch cfg.Auth.SessionStore {
	case SessionStorePostgres, SessionStoreRedis, SessionStoreNone:
	default:
		return nil, fmt.Errorf("%w: SESSION_STORE must be one of postgres, redis, none (got %q)",
			models.ErrConfiguration, cfg.Auth.SessionStore)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == EnvProduction {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d characters in %s environment (got %d)",
			models.ErrConfiguration, minLength, env, len(secret))
	}

	if isWeakSecret(secret) {
		return fmt.Errorf("%w: JWT_SECRET cannot be a common weak value", models.ErrConfiguration)
	}

	return nil
}

// resolveEncryptionKey makes TWO_FACTOR_ENCRYPTION_KEY mandatory in production.
// Other environments may borrow the JWT secret; the caller is expected to warn about it.
func resolveEncryptionKey(auth *AuthConfig, env string) error {
	if auth.EncryptionKey != "" {
		if env == EnvProduction && auth.EncryptionKey == auth.JWTSecret {
			return fmt.Errorf("%w: TWO_FACTOR_ENCRYPTION_KEY must differ from JWT_SECRET in production", models.ErrConfiguration)
		}
		if len(auth.EncryptionKey) < 32 && env == EnvProduction {
			return fmt.Errorf("%w: TWO_FACTOR_ENCRYPTION_KEY must be at least 32 characters in production", models.ErrConfiguration)
		}
		return nil
	}

	if env == EnvProduction {
		return fmt.Errorf("%w: TWO_FACTOR_ENCRYPTION_KEY is required in production", models.ErrConfiguration)
	}

	auth.EncryptionKey = auth.JWTSecret
	auth.EncryptionKeyFallback = true
	return nil
}

func validateOAuth(oauth *OAuthConfig, env, appURL string) error {
	if !oauth.Enabled() {
		return nil
	}
	if oauth.GoogleClientSecret == "" {
		return fmt.Errorf("%w: GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set", models.ErrConfiguration)
	}
	if oauth.GoogleRedirectURL == "" {
		if env == EnvProduction {
			return fmt.Errorf("%w: GOOGLE_REDIRECT_URL is required in production", models.ErrConfiguration)
		}
		oauth.GoogleRedirectURL = appURL + "/auth/oauth/callback"
	}
	return nil
}

func isWeakSecret(secret string) bool {
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example", "your-secret-key",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return true
		}
	}
	return false
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value string built from DB_*.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
