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

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	// PatientLinkMode is "auto" or "strict"; see patients.ParseLinkMode.
	PatientLinkMode string
	ClinicTimezone  string

	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	RateLimitRPS   float64
	RateLimitBurst int

	AuditEnabled bool

	SeedAdminEmail    string
	SeedAdminPassword string
	SeedAdminName     string
}

const devJWTSecret = "clinicdesk-dev-secret"

// Load reads configuration from the environment. A .env file (or the file
// named by ENV_FILE) is applied first without overriding set variables.
func Load() *Config {
	_ = LoadEnvFile(os.Getenv("ENV_FILE"))

	databaseURL := getEnv("DATABASE_URL", "")
	env := getEnv("ENV", "development")
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" && env == "development" {
		jwtSecret = devJWTSecret
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                env,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        databaseURL,
		JWTSecret:          jwtSecret,
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
		PatientLinkMode:    strings.ToLower(getEnv("PATIENT_LINK_MODE", "auto")),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "Local"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		AuditEnabled:       getEnvAsBool("AUDIT_ENABLED", databaseURL != ""),
		SeedAdminEmail:     getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:  getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedAdminName:      getEnv("SEED_ADMIN_NAME", "Administrator"),
	}
}

// LoadEnvFile applies path, or ./.env when path is empty. A missing default
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.Env == "production" && c.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.PatientLinkMode != "auto" && c.PatientLinkMode != "strict" {
		errs = append(errs, fmt.Errorf("PATIENT_LINK_MODE must be auto or strict, got %q", c.PatientLinkMode))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves ClinicTimezone; "today" boundaries are computed in it.
func (c *Config) Location() (*time.Location, error) {
	switch c.ClinicTimezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: CLINIC_TIMEZONE: %w", err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value >= 0 {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
