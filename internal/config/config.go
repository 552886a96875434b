package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
	MFA      MFAConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
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
	Port     string
	Env      string
	LogLevel string
}

// SecurityConfig holds the tunables for the authentication pipeline:
// per-action rate limit thresholds, the sliding window, lockout behavior and
// the bound on external credential verification.
type SecurityConfig struct {
	MaxLoginAttempts    int
	MaxRegisterAttempts int
	MaxResetAttempts    int
	MaxNotifyAttempts   int
	RateLimitWindow     time.Duration
	AttemptRetention    time.Duration
	LockoutThreshold    int
	LockoutDuration     time.Duration
	VerifyTimeout       time.Duration
	CleanupInterval     time.Duration
	MFATokenSecret      string
}

type MFAConfig struct {
	EncryptionKey        string // 32 bytes for AES-256
	Issuer               string
	ChallengeTTL         time.Duration
	MaxChallengeAttempts int
}

type NotifyConfig struct {
	AWSRegion   string
	FromAddress string
	QueueSize   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mfaTokenSecret := getEnv("MFA_TOKEN_SECRET", "")
	if mfaTokenSecret == "" {
		return nil, fmt.Errorf("MFA_TOKEN_SECRET is required")
	}

	mfaKey := getEnv("MFA_ENCRYPTION_KEY", "")
	if len(mfaKey) != 32 {
		return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be exactly 32 bytes (got %d)", len(mfaKey))
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "myralight_auth"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:    getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			MaxRegisterAttempts: getEnvAsInt("MAX_REGISTER_ATTEMPTS", 3),
			MaxResetAttempts:    getEnvAsInt("MAX_RESET_ATTEMPTS", 3),
			MaxNotifyAttempts:   getEnvAsInt("MAX_NOTIFY_ATTEMPTS", 10),
			RateLimitWindow:     getEnvAsDuration("RATE_LIMIT_WINDOW", 1*time.Hour),
			AttemptRetention:    getEnvAsDuration("ATTEMPT_RETENTION", 24*time.Hour),
			LockoutThreshold:    getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			VerifyTimeout:       getEnvAsDuration("VERIFY_TIMEOUT", 5*time.Second),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			MFATokenSecret:      mfaTokenSecret,
		},
		MFA: MFAConfig{
			EncryptionKey:        mfaKey,
			Issuer:               getEnv("MFA_ISSUER", "Myralight"),
			ChallengeTTL:         getEnvAsDuration("MFA_CHALLENGE_TTL", 5*time.Minute),
			MaxChallengeAttempts: getEnvAsInt("MFA_MAX_CHALLENGE_ATTEMPTS", 5),
		},
		Notify: NotifyConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("NOTIFY_FROM_ADDRESS", "no-reply@myralight.example"),
			QueueSize:   getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// The retention floor keeps the ledger usable for both the rate limit
	// window and 24h risk analysis.
	if cfg.Security.AttemptRetention < cfg.Security.RateLimitWindow {
		return nil, fmt.Errorf("ATTEMPT_RETENTION must be at least RATE_LIMIT_WINDOW")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
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
