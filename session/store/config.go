package store

import (
	"os"
	"strconv"
	"time"
)

// RedisConfigFromEnv loads Redis session configuration from environment
// variables.
func RedisConfigFromEnv() *RedisConfig {
	return &RedisConfig{
		Addr:     getEnv("AGRI_SESSION_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("AGRI_SESSION_REDIS_PASSWORD", ""),
		DB:       getEnvInt("AGRI_SESSION_REDIS_DB", 0),
		Prefix:   getEnv("AGRI_SESSION_REDIS_PREFIX", "agri:session:"),
		TTL:      getEnvDuration("AGRI_SESSION_TTL", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
