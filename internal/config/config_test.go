package config

import (
	"testing"

	"github.com/ironsheep/digit-tools-mcp/internal/knn"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envMap(nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ModelPath != DefaultModelPath {
		t.Errorf("ModelPath = %q, want %q", cfg.ModelPath, DefaultModelPath)
	}
	if cfg.K != 0 || cfg.DefaultK != DefaultTrainK {
		t.Errorf("K = %d, DefaultK = %d; want 0 and %d", cfg.K, cfg.DefaultK, DefaultTrainK)
	}
	if cfg.Index != knn.IndexBruteForce {
		t.Errorf("Index = %q, want brute", cfg.Index)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		EnvModelPath:   "/var/lib/digits.db",
		EnvK:           "7",
		EnvIndex:       "kdtree",
		EnvTrainImages: "train-images-idx3-ubyte.gz",
		EnvTrainLabels: "train-labels-idx1-ubyte.gz",
		EnvDefaultK:    "3",
		EnvLogLevel:    "DEBUG",
		EnvPort:        "9000",
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ModelPath != "/var/lib/digits.db" || cfg.K != 7 || cfg.DefaultK != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Index != knn.IndexKDTree {
		t.Errorf("Index = %q, want kdtree", cfg.Index)
	}
	if cfg.TrainImages == "" || cfg.TrainLabels == "" {
		t.Error("training archives not read")
	}
	if !cfg.Debug {
		t.Error("Debug should be enabled")
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000 from PORT", cfg.HTTPAddr)
	}

	cfg, err = Load(envMap(map[string]string{EnvHTTPAddr: "127.0.0.1:7000", EnvPort: "9000"}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:7000" {
		t.Errorf("HTTPAddr = %q, want explicit address", cfg.HTTPAddr)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric k", map[string]string{EnvK: "three"}},
		{"negative k", map[string]string{EnvK: "-1"}},
		{"zero default k", map[string]string{EnvDefaultK: "0"}},
		{"unknown index", map[string]string{EnvIndex: "ball-tree"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(envMap(tt.env)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
