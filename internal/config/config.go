package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	Server       ServerConfig
	Auth         AuthConfig
	TwoFactor    TwoFactorConfig
	Risk         RiskConfig
	Notification NotificationConfig
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
	MigrateOnStart    bool
}

// RedisConfig selects the one-time code backend. Empty Addr keeps codes in Postgres.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret               string
	TokenIssuer             string
	SessionTTL              time.Duration
	LoginFlowTTL            time.Duration
	CleanupSchedule         string // cron spec, e.g. "@every 1h"
	TimingBaseDelay         time.Duration
	TimingRandomDelay       time.Duration
	LoginRateLimitPerMinute int
}

type TwoFactorConfig struct {
	EncryptionKey     []byte // 32-byte AES-256 key for TOTP secrets
	Issuer            string
	OTPResendInterval time.Duration
	OTPResendBurst    int
	EnrollmentTTL     time.Duration
}

type RiskConfig struct {
	DefaultHomeRegion      string
	FailedAttemptThreshold int
	FailedAttemptWindow    time.Duration
	RapidAttemptThreshold  int
	RapidAttemptWindow     time.Duration
	LocationWindow         time.Duration
	LocationMapFile        string
}

type NotificationConfig struct {
	Mode             string // "live" sends through SES and the SMS gateway, "log" only logs
	AWSRegion        string
	EmailFromAddress string
	SMSGatewayURL    string
	SMSGatewayToken  string
	SMSSenderID      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	encryptionKey, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "riskgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			MigrateOnStart:    getEnvAsBool("DB_MIGRATE_ON_START", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Auth: AuthConfig{
			JWTSecret:               jwtSecret,
			TokenIssuer:             getEnv("TOKEN_ISSUER", "riskgate"),
			SessionTTL:              getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			LoginFlowTTL:            getEnvAsDuration("LOGIN_FLOW_TTL", 15*time.Minute),
			CleanupSchedule:         getEnv("CLEANUP_SCHEDULE", "@every 1h"),
			TimingBaseDelay:         getEnvAsDuration("TIMING_DELAY_BASE", 250*time.Millisecond),
			TimingRandomDelay:       getEnvAsDuration("TIMING_DELAY_RANDOM", 100*time.Millisecond),
			LoginRateLimitPerMinute: getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		TwoFactor: TwoFactorConfig{
			EncryptionKey:     encryptionKey,
			Issuer:            getEnv("TOTP_ISSUER", "Riskgate"),
			OTPResendInterval: getEnvAsDuration("OTP_RESEND_INTERVAL", 30*time.Second),
			OTPResendBurst:    getEnvAsInt("OTP_RESEND_BURST", 3),
			EnrollmentTTL:     getEnvAsDuration("TWO_FACTOR_ENROLLMENT_TTL", 15*time.Minute),
		},
		Risk: RiskConfig{
			DefaultHomeRegion:      getEnv("RISK_DEFAULT_HOME_REGION", "New York"),
			FailedAttemptThreshold: getEnvAsInt("RISK_FAILED_ATTEMPT_THRESHOLD", 3),
			FailedAttemptWindow:    getEnvAsDuration("RISK_FAILED_ATTEMPT_WINDOW", 1*time.Hour),
			RapidAttemptThreshold:  getEnvAsInt("RISK_RAPID_ATTEMPT_THRESHOLD", 5),
			RapidAttemptWindow:     getEnvAsDuration("RISK_RAPID_ATTEMPT_WINDOW", 5*time.Minute),
			LocationWindow:         getEnvAsDuration("RISK_LOCATION_WINDOW", 24*time.Hour),
			LocationMapFile:        getEnv("LOCATION_MAP_FILE", ""),
		},
		Notification: NotificationConfig{
			Mode:             getEnv("NOTIFICATION_MODE", "log"),
			AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
			EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			SMSGatewayURL:    getEnv("SMS_GATEWAY_URL", ""),
			SMSGatewayToken:  getEnv("SMS_GATEWAY_TOKEN", ""),
			SMSSenderID:      getEnv("SMS_SENDER_ID", "Riskgate"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Notification.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// parseEncryptionKey decodes the hex-encoded 32-byte TOTP encryption key
func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (n NotificationConfig) validate() error {
	switch n.Mode {
	case "log":
		return nil
	case "live":
		if n.EmailFromAddress == "" {
			return fmt.Errorf("EMAIL_FROM_ADDRESS is required when NOTIFICATION_MODE=live")
		}
		if n.SMSGatewayURL == "" {
			return fmt.Errorf("SMS_GATEWAY_URL is required when NOTIFICATION_MODE=live")
		}
		return nil
	default:
		return fmt.Errorf("NOTIFICATION_MODE must be \"log\" or \"live\" (got %q)", n.Mode)
	}
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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
