// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// キーソースの種別。
const (
	KeySourceDatabase = "database"
	KeySourceFile     = "file"
)

const defaultMaxRequestBodySize = 64 << 20 // 64MiB

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string

	// KeySource は鍵素材の取得元（database または file）。
	KeySource      string
	KeyMaterialDir string

	// MaxZipEntries と MaxZipEntrySize はアーカイブ展開の上限。必須。
	MaxZipEntries      int
	MaxZipEntrySize    int64
	MaxRequestBodySize int64

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		KeySource:          strings.ToLower(getEnv("KEY_SOURCE", KeySourceDatabase)),
		KeyMaterialDir:     os.Getenv("KEY_MATERIAL_DIR"),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "data-upload-service"),
	}

	var errs []error

	maxEntries, err := requiredInt("MAX_ZIP_ENTRIES")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxZipEntries = int(maxEntries)

	cfg.MaxZipEntrySize, err = requiredInt("MAX_ZIP_ENTRY_SIZE")
	if err != nil {
		errs = append(errs, err)
	}

	cfg.MaxRequestBodySize, err = optionalInt("MAX_REQUEST_BODY_SIZE", defaultMaxRequestBodySize)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.OtelEnabled, err = optionalBool("OTEL_ENABLED", false)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.OtelSamplingRate, err = optionalFloat("OTEL_SAMPLING_RATE", 1.0)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.OtelSamplingRate < 0 || cfg.OtelSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1, got %v", cfg.OtelSamplingRate))
	}

	switch cfg.KeySource {
	case KeySourceDatabase:
	case KeySourceFile:
		if cfg.KeyMaterialDir == "" {
			errs = append(errs, errors.New("KEY_MATERIAL_DIR is required when KEY_SOURCE=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("KEY_SOURCE must be %q or %q, got %q", KeySourceDatabase, KeySourceFile, cfg.KeySource))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func requiredInt(key string) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return parsePositiveInt(key, val)
}

func optionalInt(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	return parsePositiveInt(key, val)
}

func parsePositiveInt(key, val string) (int64, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func optionalBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func optionalFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
