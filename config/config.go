// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Presence scopes.
const (
	PresenceScopeShared = "shared"
	PresenceScopeGlobal = "global"
)

// Config holds all runtime settings.
type Config struct {
	Port            string
	ShutdownTimeout time.Duration
	AllowedOrigins  string

	JWTSecret string
	JWTIssuer string

	StoreDriver   string
	DBPath        string
	DBDebug       bool
	MongoURI      string
	MongoDatabase string

	RedisAddr string
	RedisTTL  time.Duration

	PresenceScope string
	PresenceGrace time.Duration
	TypingTimeout time.Duration
	TypingSweep   time.Duration
	SendQueueSize int

	MessagesPerSecond float64
	MessageBurst      int
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:              "3000",
		ShutdownTimeout:   30 * time.Second,
		AllowedOrigins:    "http://localhost:3000,http://localhost:5173",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "chat-realtime",
		StoreDriver:       DriverSQLite,
		DBPath:            "chat.db",
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "chat",
		RedisTTL:          5 * time.Minute,
		PresenceScope:     PresenceScopeShared,
		PresenceGrace:     2 * time.Second,
		TypingTimeout:     3 * time.Second,
		TypingSweep:       time.Second,
		SendQueueSize:     256,
		MessagesPerSecond: 10,
		MessageBurst:      20,
	}
}

// Load reads the environment on top of Default. Invalid values keep the
// default.
func Load() Config {
	cfg := Default()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", getEnv("CLIENT_URL", cfg.AllowedOrigins))

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)

	switch driver := strings.ToLower(getEnv("STORE_DRIVER", cfg.StoreDriver)); driver {
	case DriverSQLite, DriverMongo:
		cfg.StoreDriver = driver
	}
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.DBDebug = os.Getenv("DB_DEBUG") == "true"
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisTTL = getEnvDuration("REDIS_TTL", cfg.RedisTTL)

	switch scope := strings.ToLower(getEnv("PRESENCE_SCOPE", cfg.PresenceScope)); scope {
	case PresenceScopeShared, PresenceScopeGlobal:
		cfg.PresenceScope = scope
	}
	cfg.PresenceGrace = getEnvDuration("PRESENCE_GRACE", cfg.PresenceGrace)
	cfg.TypingTimeout = getEnvDuration("TYPING_TIMEOUT", cfg.TypingTimeout)
	cfg.TypingSweep = getEnvDuration("TYPING_SWEEP", cfg.TypingSweep)
	cfg.SendQueueSize = getEnvInt("SEND_QUEUE_SIZE", cfg.SendQueueSize)

	cfg.MessagesPerSecond = float64(getEnvInt("WS_MESSAGES_PER_SECOND", int(cfg.MessagesPerSecond)))
	cfg.MessageBurst = getEnvInt("WS_BURST", cfg.MessageBurst)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
