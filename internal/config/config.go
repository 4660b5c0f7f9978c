package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	// RedisURL enables cross-instance fan-out of task changes when set.
	RedisURL string

	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// FrontendCallbackURL receives the one-time code after an OAuth sign-in.
	FrontendCallbackURL string
	BaseURL             string

	GitHub OAuthConfig
	Google OAuthConfig

	Log     LogConfig
	Metrics bool
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClientConfig is what the terminal client needs to reach the API.
type ClientConfig struct {
	APIURL      string
	SessionFile string
}

// Load reads the server settings from the environment and an optional .env
// file. Every problem is reported, not just the first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		FrontendCallbackURL: getEnv("FRONTEND_CALLBACK_URL", "http://localhost:3000/auth/callback"),
		BaseURL:             getEnv("BASE_URL", "http://localhost:8080"),

		GitHub: oauthFromEnv("GITHUB"),
		Google: oauthFromEnv("GOOGLE"),

		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	var err error
	if cfg.JWTAccessExpiry, err = durationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.JWTRefreshExpiry, err = durationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics, err = boolEnv("METRICS_ENABLED", true); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the client settings. The client has no secrets, so it never fails.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	sessionFile := os.Getenv("TEAMBOARD_SESSION_FILE")
	if sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		sessionFile = filepath.Join(dir, "teamboard", "session.json")
	}

	return &ClientConfig{
		APIURL:      getEnv("TEAMBOARD_API_URL", "http://localhost:8080/api/v1"),
		SessionFile: sessionFile,
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func oauthFromEnv(prefix string) OAuthConfig {
	return OAuthConfig{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURL:  os.Getenv(prefix + "_REDIRECT_URL"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}
