// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

// Environment variable names.
const (
	EnvModelPath   = "DIGIT_MODEL_PATH"
	EnvK           = "DIGIT_K"
	EnvIndex       = "DIGIT_INDEX"
	EnvTrainImages = "DIGIT_TRAIN_IMAGES"
	EnvTrainLabels = "DIGIT_TRAIN_LABELS"
	EnvDefaultK    = "DIGIT_DEFAULT_K"
	EnvHTTPAddr    = "DIGIT_HTTP_ADDR"
	EnvLogLevel    = "DIGIT_LOG_LEVEL"

	// EnvPort is honored for the HTTP address when EnvHTTPAddr is unset, as
	// container platforms commonly inject it.
	EnvPort = "PORT"
)

// Defaults.
const (
	DefaultModelPath = "digits_model.db"
	DefaultTrainK    = 5
	DefaultHTTPAddr  = ":8080"
)

// Config holds the settings shared by the entry points.
type Config struct {
	// ModelPath is the model file loaded at startup and written by retraining.
	ModelPath string

	// K is the neighbor count for queries; zero uses the model default.
	K int

	// Index selects the nearest-neighbor search implementation.
	Index knn.IndexKind

	// TrainImages and TrainLabels name IDX archives used to train a model on
	// startup when ModelPath does not exist.
	TrainImages string
	TrainLabels string

	// DefaultK is the neighbor count recorded in newly trained models.
	DefaultK int

	// HTTPAddr is the listen address of the HTTP service.
	HTTPAddr string

	// Debug enables verbose logging.
	Debug bool
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load reads the configuration through getenv, applying defaults for unset
// variables.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ModelPath:   DefaultModelPath,
		DefaultK:    DefaultTrainK,
		HTTPAddr:    DefaultHTTPAddr,
		Index:       knn.IndexBruteForce,
		TrainImages: strings.TrimSpace(getenv(EnvTrainImages)),
		TrainLabels: strings.TrimSpace(getenv(EnvTrainLabels)),
		Debug:       strings.EqualFold(strings.TrimSpace(getenv(EnvLogLevel)), "debug"),
	}

	if v := strings.TrimSpace(getenv(EnvModelPath)); v != "" {
		cfg.ModelPath = v
	}

	if v := strings.TrimSpace(getenv(EnvHTTPAddr)); v != "" {
		cfg.HTTPAddr = v
	} else if port := strings.TrimSpace(getenv(EnvPort)); port != "" {
		cfg.HTTPAddr = ":" + port
	}

	kind, err := knn.ParseIndexKind(getenv(EnvIndex))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvIndex, err)
	}
	cfg.Index = kind

	if cfg.K, err = intVar(getenv, EnvK, 0, 0); err != nil {
		return nil, err
	}
	if cfg.DefaultK, err = intVar(getenv, EnvDefaultK, DefaultTrainK, 1); err != nil {
		return nil, err
	}
	return cfg, nil
}

// intVar parses an integer variable, returning def when it is unset.
func intVar(getenv func(string) string, name string, def, minimum int) (int, error) {
	v := strings.TrimSpace(getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, v)
	}
	if n < minimum {
		return 0, fmt.Errorf("%s: %d is below the minimum of %d", name, n, minimum)
	}
	return n, nil
}
