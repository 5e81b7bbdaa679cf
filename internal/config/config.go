package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	OsuClientID     string
	OsuClientSecret string
	OsuAPIURL       string
	BeatmapURL      string
	CalculatorURL   string
	DBPath          string
	BeatmapCacheDir string
	ServerPort      string

	// AttributeTTL of zero keeps cached attributes forever.
	AttributeTTL time.Duration
	WorkerCount  int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	ttl, err := time.ParseDuration(getEnv("ATTRIBUTE_TTL", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ATTRIBUTE_TTL: %w", err)
	}
	workers, err := strconv.Atoi(getEnv("WORKER_COUNT", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_COUNT: %w", err)
	}

	cfg := &Config{
		OsuClientID:     getEnv("OSU_CLIENT_ID", ""),
		OsuClientSecret: getEnv("OSU_CLIENT_SECRET", ""),
		OsuAPIURL:       getEnv("OSU_API_URL", "https://osu.ppy.sh"),
		BeatmapURL:      getEnv("BEATMAP_URL", "https://osu.ppy.sh/osu"),
		CalculatorURL:   getEnv("CALCULATOR_URL", "http://localhost:5005"),
		DBPath:          getEnv("DB_PATH", "difficultycache.db"),
		BeatmapCacheDir: getEnv("BEATMAP_CACHE_PATH", "cache"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		AttributeTTL:    ttl,
		WorkerCount:     workers,
	}

	if cfg.OsuClientID == "" || cfg.OsuClientSecret == "" {
		return nil, fmt.Errorf("OSU_CLIENT_ID and OSU_CLIENT_SECRET are required")
	}
	if cfg.AttributeTTL < 0 {
		return nil, fmt.Errorf("ATTRIBUTE_TTL must not be negative")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("beatmap_cache", cfg.BeatmapCacheDir).
		Str("calculator_url", cfg.CalculatorURL).
		Str("server_port", cfg.ServerPort).
		Dur("attribute_ttl", cfg.AttributeTTL).
		Int("worker_count", cfg.WorkerCount).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
