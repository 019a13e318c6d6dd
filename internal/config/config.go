package config

import (
	"fmt"
	"os"
	"time"

	"bracket-rankings/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ChallongeAPIKey string
	ChallongeURL    string
	DBPath          string
	ServerPort      string
	LogLevel        string
	RegionsFile     string
	RankingTimeout  time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	timeout, err := time.ParseDuration(getEnv("RANKING_TIMEOUT", constants.RankingTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid RANKING_TIMEOUT: %w", err)
	}

	cfg := &Config{
		ChallongeAPIKey: getEnv("CHALLONGE_API_KEY", ""),
		ChallongeURL:    getEnv("CHALLONGE_URL", constants.ChallongeBaseURL),
		DBPath:          getEnv("DB_PATH", "rankings.db"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RegionsFile:     getEnv("REGIONS_FILE", ""),
		RankingTimeout:  timeout,
	}

	if cfg.ChallongeAPIKey == "" {
		logger.Warn().Msg("CHALLONGE_API_KEY not set, challonge imports will fail")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("regions_file", cfg.RegionsFile).
		Dur("ranking_timeout", cfg.RankingTimeout).
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
