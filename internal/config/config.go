// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
)

// Sync backend selectors.
const (
	BackendNone   = "none"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config carries everything the CLI needs to wire a session.
type Config struct {
	SyncBackend        string // none | sqlite | mongo
	SQLitePath         string
	MongoURI           string
	MongoDatabase      string
	Verbose            bool
	TrashRetentionDays int
}

// Load reads the environment. A missing .env file is not an error.
func Load(envFile string) *Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Debug("config: no env file at %s: %v", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		SyncBackend:        getEnv("NOVELSPARK_SYNC", BackendSQLite),
		SQLitePath:         getEnv("NOVELSPARK_SQLITE_PATH", "novelspark.db"),
		MongoURI:           getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGODB_DATABASE", "novelspark"),
		Verbose:            getEnvBool("NOVELSPARK_VERBOSE", false),
		TrashRetentionDays: getEnvInt("NOVELSPARK_TRASH_RETENTION_DAYS", 30),
	}

	switch cfg.SyncBackend {
	case BackendNone, BackendSQLite, BackendMongo:
	default:
		logger.Warn("config: unknown sync backend %q, sync disabled", cfg.SyncBackend)
		cfg.SyncBackend = BackendNone
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
