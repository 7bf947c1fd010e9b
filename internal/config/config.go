package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	OutputDir    string
	OutputFormat string
	LedgerPath   string
	CO2Factor    float64

	WatchDir          string
	WatchProcessedDir string
	WatchFailedDir    string
	WatchSettleSec    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	watchDir := getEnv("WATCH_DIR", filepath.Join(cwd, "in"))

	cfg := Config{
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		OutputFormat: getEnv("OUTPUT_FORMAT", "csv"),
		LedgerPath:   getEnv("LEDGER_PATH", filepath.Join(cwd, "data", "runs.db")),
		CO2Factor:    getEnvFloat("CO2_FACTOR", 230.0),

		WatchDir:          watchDir,
		WatchProcessedDir: getEnv("WATCH_PROCESSED_DIR", filepath.Join(watchDir, "processed")),
		WatchFailedDir:    getEnv("WATCH_FAILED_DIR", filepath.Join(watchDir, "failed")),
		WatchSettleSec:    getEnvInt("WATCH_SETTLE_SEC", 3),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
