package helper

import (
	"os"
	"strconv"
)

// GetEnvAsInt baca env var sebagai int dengan fallback.
func GetEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
