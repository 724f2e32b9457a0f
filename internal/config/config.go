// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration knobs for the HTTP server, the store and the
// classifier.
type Config struct {
	HTTPAddr          string
	DBPath            string
	StorageDir        string
	Threshold         float64
	LabelsPath        string
	CatalogPath       string
	DefaultPrice      int64
	ClassifierURL     string
	ClassifierTimeout time.Duration
	MaxUploadBytes    int64
	ShutdownTimeout   time.Duration
	LogLevel          string
	LogFormat         string
	CORSOrigins       []string
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int64) int64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durenvms(key string, defMs int64) time.Duration {
	return time.Duration(atoienv(key, defMs)) * time.Millisecond
}

func durenvs(key string, defSec int64) time.Duration {
	return time.Duration(atoienv(key, defSec)) * time.Second
}

func listenv(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadDotEnv reads files (".env" when none are given) into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8000"),
		DBPath:            getenv("DB_PATH", "data/app.db"),
		StorageDir:        getenv("STORAGE_DIR", "storage"),
		Threshold:         floatenv("THRESHOLD", 0.90),
		LabelsPath:        getenv("LABELS_PATH", "models/labels.txt"),
		CatalogPath:       getenv("CATALOG_PATH", ""),
		DefaultPrice:      atoienv("DEFAULT_PRICE", 10000),
		ClassifierURL:     getenv("CLASSIFIER_URL", ""),
		ClassifierTimeout: durenvms("CLASSIFIER_TIMEOUT_MS", 5000),
		MaxUploadBytes:    atoienv("MAX_UPLOAD_BYTES", 10<<20),
		ShutdownTimeout:   durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		CORSOrigins:       listenv("CORS_ORIGINS", "*"),
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("THRESHOLD must be in (0,1], got %v", c.Threshold))
	}
	if c.DefaultPrice <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_PRICE must be positive, got %d", c.DefaultPrice))
	}
	if c.ClassifierTimeout <= 0 {
		errs = append(errs, errors.New("CLASSIFIER_TIMEOUT_MS must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// RequireClassifier reports an error when no classifier endpoint is set.
func (c Config) RequireClassifier() error {
	if c.ClassifierURL == "" {
		return errors.New("CLASSIFIER_URL is required")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
