package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                 string
	BaseURL              string
	AppDatabaseURL       string
	WhatsmeowDatabaseURL string
	JWTSecret            string
	CORSAllowOrigins     []string

	// Rate limiter untuk API group.
	RateLimitPerSecond int
	RateLimitBurst     int
	RateWindowMinutes  int

	// Nama device yang tampil saat pairing.
	DeviceOS string
	// Versi protokol yang dioper ke capability (informasional).
	ProtocolVersion string
	// Interval health check lifecycle manager, menit.
	HealthCheckMinutes int
}

func Load() *Config {
	origins := strings.Split(getEnv("CORS_ALLOW_ORIGINS", "*"), ",")
	for i, o := range origins {
		origins[i] = strings.TrimSpace(o)
	}

	return &Config{
		Port:                 getEnv("PORT", "2121"),
		BaseURL:              getEnv("BASEURL", ""),
		AppDatabaseURL:       getEnv("APP_DATABASE_URL", ""),
		WhatsmeowDatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		CORSAllowOrigins:     origins,
		RateLimitPerSecond:   getEnvInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 10),
		RateWindowMinutes:    getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 3),
		DeviceOS:             getEnv("DEVICE_OS_NAME", "GOWA Sessions"),
		ProtocolVersion:      getEnv("PROTOCOL_VERSION", ""),
		HealthCheckMinutes:   getEnvInt("HEALTH_CHECK_MINUTES", 5),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
