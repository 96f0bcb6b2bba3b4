package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"songapi/internal/config"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	SettingsPath string
	Creator      string
	DailyLimit   int

	LyricsBaseURL           string
	LyricsLocale            string
	AceStepBaseURL          string
	PollMaxAttempts         int
	PollInterval            time.Duration
	GenerationTimeout       time.Duration
	GenerationMaxConcurrent int
	QuotaSweepInterval      time.Duration

	GeoIPDBPath    string
	GeoIPASNDBPath string
	GeoHTTPBaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	StaticDir          string
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// The settings file named by SETTINGS_PATH supplies the creator and daily limit; the
// API_CREATOR and DAILY_LIMIT variables take precedence over it.
func LoadConfig() (*Config, error) {
	settingsPath := os.Getenv("SETTINGS_PATH")
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "10005"),
		// Generation requests hold the connection for the whole poll budget.
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 200)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		SettingsPath: settingsPath,
		Creator:      getEnv("API_CREATOR", settings.API.Creator),
		DailyLimit:   getEnvInt("DAILY_LIMIT", settings.API.Limit),

		LyricsBaseURL:           os.Getenv("LYRICS_BASE_URL"),
		LyricsLocale:            getEnv("LYRICS_LOCALE", "es"),
		AceStepBaseURL:          os.Getenv("ACESTEP_BASE_URL"),
		PollMaxAttempts:         getEnvInt("POLL_MAX_ATTEMPTS", 120),
		PollInterval:            getEnvDuration("POLL_INTERVAL_MS", time.Millisecond, 1000),
		GenerationTimeout:       getEnvDuration("GENERATION_TIMEOUT_SECONDS", time.Second, 0),
		GenerationMaxConcurrent: getEnvInt("GENERATION_MAX_CONCURRENT", 8),
		QuotaSweepInterval:      getEnvDuration("QUOTA_SWEEP_MINUTES", time.Minute, 10),

		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		GeoIPASNDBPath: os.Getenv("GEOIP_ASN_DB_PATH"),
		GeoHTTPBaseURL: getEnv("GEO_HTTP_BASE_URL", "https://ipapi.co"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		StaticDir:          os.Getenv("STATIC_DIR"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.DailyLimit <= 0 {
		return nil, fmt.Errorf("DAILY_LIMIT must be positive, got %d", cfg.DailyLimit)
	}
	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", cfg.PollMaxAttempts)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.GenerationMaxConcurrent <= 0 {
		return nil, fmt.Errorf("GENERATION_MAX_CONCURRENT must be positive, got %d", cfg.GenerationMaxConcurrent)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, unit time.Duration, fallback int) time.Duration {
	return unit * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
