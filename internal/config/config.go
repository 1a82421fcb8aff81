package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"labloans/internal/logger"
)

type Config struct {
	DatabaseURL       string
	ServerAddr        string
	JWTSecret         string
	LogMode           string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	AutoMigrate       bool
	CORSOrigins       []string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	MetricsEnabled    bool
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET environment variable is required")
)

// Load reads the process environment. log may be nil.
func Load(log *logger.Logger) (Config, error) {
	cfg := Config{
		DatabaseURL:       getEnv("DATABASE_URL", "", log),
		ServerAddr:        getEnv("SERVER_ADDR", ":8080", log),
		JWTSecret:         getEnv("JWT_SECRET", "", log),
		LogMode:           getEnv("LOG_MODE", "dev", log),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20, log),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10, log),
		DBConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour, log),
		AutoMigrate:       getEnvAsBool("AUTO_MIGRATE", false, log),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", log)),
		ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second, log),
		WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second, log),
		MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true, log),
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrMissingDatabaseURL
	}
	if cfg.JWTSecret == "" {
		return cfg, ErrMissingJWTSecret
	}
	return cfg, nil
}

func getEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	return strings.TrimSpace(val)
}

func getEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default", "env_var", key, "providedVal", valStr, "defaultVal", defaultVal)
		}
		return defaultVal
	}
	return i
}

func getEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as bool, using default", "env_var", key, "providedVal", valStr, "defaultVal", defaultVal)
		}
		return defaultVal
	}
	return b
}

func getEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(valStr))
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as duration, using default", "env_var", key, "providedVal", valStr, "defaultVal", defaultVal)
		}
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
