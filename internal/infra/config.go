package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// Generation provider (task API).
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderModel   string
	SafetyMarkers   []string

	// Reconciliation cadence: poll fast while the user is likely watching,
	// slow down afterwards, give up after six hours.
	PollFastInterval time.Duration
	PollSlowInterval time.Duration
	PollFastPhase    time.Duration
	PollMaxAge       time.Duration
	SweepInterval    time.Duration

	// Points.
	StarterPoints int
	PromoCodes    map[string]int

	// Object storage. S3 when a bucket is configured, filesystem otherwise.
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	StoragePath     string
	StorageBaseURL  string

	LocalStorePath string
	GeoIPDBPath    string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.xskill.ai"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:   getEnv("PROVIDER_MODEL", "st-ai/super-seed2"),
		SafetyMarkers:   splitList(os.Getenv("SAFETY_MARKERS")),

		PollFastInterval: time.Second * time.Duration(getEnvInt("POLL_FAST_INTERVAL_SECONDS", 5)),
		PollSlowInterval: time.Second * time.Duration(getEnvInt("POLL_SLOW_INTERVAL_SECONDS", 20)),
		PollFastPhase:    time.Minute * time.Duration(getEnvInt("POLL_FAST_PHASE_MINUTES", 2)),
		PollMaxAge:       time.Hour * time.Duration(getEnvInt("POLL_MAX_AGE_HOURS", 6)),
		SweepInterval:    time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 5)),

		StarterPoints: getEnvInt("STARTER_POINTS", 200),
		PromoCodes:    parsePromoCodes(os.Getenv("PROMO_CODES")),

		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),

		LocalStorePath: getEnv("LOCAL_STORE_PATH", "./devicestore"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", cfg.Port))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}

	return cfg, nil
}

// UseS3 reports whether object storage should go to S3 instead of the local
// filesystem.
func (c *Config) UseS3() bool {
	return c.S3Bucket != ""
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePromoCodes parses "CODE:points,CODE:points" pairs. Malformed entries
// are skipped.
func parsePromoCodes(raw string) map[string]int {
	codes := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		pts, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || pts <= 0 {
			continue
		}
		codes[strings.ToUpper(strings.TrimSpace(kv[0]))] = pts
	}
	return codes
}
