package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"trigon_server/internal/logger"
)

// Config is the environment-provided surface consumed by the server. Every
// value has a default suitable for local play.
type Config struct {
	AppPort       string
	AllowedOrigin string

	MaxRooms           int
	GracePeriod        time.Duration
	RoomCreateCooldown time.Duration

	MaxConnectionsPerOrigin int
	MovesPerMinute          int
	EventsPerMinute         int

	RoomSweepInterval    time.Duration
	RoomMaxAge           time.Duration
	LimiterSweepInterval time.Duration

	BlitzDefaultSeconds int
}

func Load() *Config {
	// Missing .env is fine; real deployments pass the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		MaxRooms:           getEnvInt("MAX_ROOMS", 100),
		GracePeriod:        getEnvSeconds("GRACE_PERIOD_SECONDS", 30),
		RoomCreateCooldown: getEnvSeconds("ROOM_CREATE_COOLDOWN_SECONDS", 10),

		MaxConnectionsPerOrigin: getEnvInt("MAX_CONNECTIONS_PER_ORIGIN", 8),
		MovesPerMinute:          getEnvInt("MOVES_PER_MINUTE", 60),
		EventsPerMinute:         getEnvInt("EVENTS_PER_MINUTE", 30),

		RoomSweepInterval:    getEnvSeconds("ROOM_SWEEP_INTERVAL_SECONDS", 600),
		RoomMaxAge:           getEnvSeconds("ROOM_MAX_AGE_SECONDS", 3600),
		LimiterSweepInterval: getEnvSeconds("LIMITER_SWEEP_INTERVAL_SECONDS", 300),

		BlitzDefaultSeconds: getEnvInt("BLITZ_DEFAULT_SECONDS", 30),
	}

	logger.Info("config loaded",
		"port", cfg.AppPort,
		"max_rooms", cfg.MaxRooms,
		"grace_period", cfg.GracePeriod,
		"room_cooldown", cfg.RoomCreateCooldown,
	)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		logger.Warn("invalid integer env value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func getEnvSeconds(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Second
}
