package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const DEV_ENV_FILENAME = ".env.development"
const PROD_ENV_FILENAME = ".env.production"

func InitEnvironmentVariables(envDir, goEnv string) error {
	// Containers receive their env from the orchestrator
	if os.Getenv("ENV") == "production" {
		log.Info("Running in production environment")
		return nil
	}

	envFile := filepath.Join(envDir, DEV_ENV_FILENAME)
	if goEnv == "production" {
		envFile = filepath.Join(envDir, PROD_ENV_FILENAME)
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s file: %w", envFile, err)
	}

	log.Debugf("loaded environment from %s", envFile)
	return nil
}

func GetEnv(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("$%s not set", key)
	}

	return value, nil
}

func GetEnvOrDefault(key, fallback string) string {
	if value, err := GetEnv(key); err == nil {
		return value
	}

	return fallback
}

func GetEnvInt(key string, fallback int) int {
	value, err := GetEnv(key)
	if err != nil {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("ignoring $%s=%q: %v", key, value, err)
		return fallback
	}

	return n
}

func GetEnvBool(key string, fallback bool) bool {
	value, err := GetEnv(key)
	if err != nil {
		return fallback
	}

	return strings.EqualFold(value, "true") || value == "1"
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := GetEnv(key)
	if err != nil {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("ignoring $%s=%q: %v", key, value, err)
		return fallback
	}

	return d
}

// SplitList splits a comma separated env value, dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
