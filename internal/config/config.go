package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"battle-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	AccessKey        string
	AllowedKeys      []string
	RemoteBaseURL    string
	DBPath           string
	ServerPort       string
	LogLevel         string
	PointsPerTeamWin int
	SyncReloadDelay  time.Duration
	ResyncInterval   time.Duration
	Location         *time.Location
}

var defaultAllowedKeys = "squad1,squad2,squad3,squad4,squad5,squad6,jtv"

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		AccessKey:     getEnv("ACCESS_KEY", ""),
		AllowedKeys:   splitList(getEnv("ALLOWED_KEYS", defaultAllowedKeys)),
		RemoteBaseURL: strings.TrimRight(getEnv("REMOTE_BASE_URL", "https://node-server-under-0eb3b9aee4e3.herokuapp.com/api"), "/"),
		DBPath:        getEnv("DB_PATH", "battle-tracker.db"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.PointsPerTeamWin, err = getEnvInt("POINTS_PER_TEAM_WIN", constants.DefaultPointsPerTeamWin); err != nil {
		return nil, err
	}
	if cfg.SyncReloadDelay, err = getEnvDuration("SYNC_RELOAD_DELAY", constants.SyncReloadDelay); err != nil {
		return nil, err
	}
	if cfg.ResyncInterval, err = getEnvDuration("RESYNC_INTERVAL", constants.ResyncInterval); err != nil {
		return nil, err
	}
	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "Local")); err != nil {
		return nil, fmt.Errorf("failed to load TIMEZONE: %w", err)
	}

	if cfg.RemoteBaseURL == "" {
		return nil, fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if len(cfg.AllowedKeys) == 0 {
		return nil, fmt.Errorf("ALLOWED_KEYS must list at least one key")
	}

	logger.Info().
		Str("remote_base_url", cfg.RemoteBaseURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("points_per_team_win", cfg.PointsPerTeamWin).
		Dur("sync_reload_delay", cfg.SyncReloadDelay).
		Dur("resync_interval", cfg.ResyncInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
