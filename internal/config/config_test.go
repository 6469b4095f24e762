package config

import (
	"os"
	"path/filepath"
	"testing"

	"textcurator/classifier"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Classifier != classifier.TypeDomain {
		t.Fatalf("default classifier = %s", cfg.Classifier)
	}
	if cfg.OutputDir == "" {
		t.Fatal("default output dir is empty")
	}
	if cfg.Models.BatchSize != 256 {
		t.Fatalf("default batch size = %d", cfg.Models.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
classifier: quality
outputDir: /tmp/results
cluster:
  devices: [0, 1]
models:
  batchSize: 64
  tokenizer: /models/tok.json
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(batchSizeEnv, "32")
	t.Setenv(quietEnv, "true")

	cfg := Load()
	if cfg.Classifier != "quality" {
		t.Fatalf("classifier = %s", cfg.Classifier)
	}
	if cfg.OutputDir != "/tmp/results" {
		t.Fatalf("output dir = %s", cfg.OutputDir)
	}
	if len(cfg.Cluster.Devices) != 2 || cfg.Cluster.Devices[0] != 0 || cfg.Cluster.Devices[1] != 1 {
		t.Fatalf("devices = %v", cfg.Cluster.Devices)
	}
	// Env wins over file.
	if cfg.Models.BatchSize != 32 {
		t.Fatalf("batch size = %d, want env override 32", cfg.Models.BatchSize)
	}
	if !cfg.Quiet {
		t.Fatal("quiet flag not applied from env")
	}
	// File values not overridden survive.
	if cfg.Models.Tokenizer != "/models/tok.json" {
		t.Fatalf("tokenizer = %s", cfg.Models.Tokenizer)
	}
	// Defaults fill the rest.
	if cfg.Models.DomainModel == "" {
		t.Fatal("domain model default lost in merge")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	cfg := Load()
	if cfg.Classifier != classifier.TypeDomain {
		t.Fatalf("classifier = %s", cfg.Classifier)
	}
}

func TestParseDevices(t *testing.T) {
	t.Parallel()

	devices, err := parseDevices(" 0, 1 ,3 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(devices) != 3 || devices[2] != 3 {
		t.Fatalf("devices = %v", devices)
	}
	if _, err := parseDevices("0,gpu1"); err == nil {
		t.Fatal("expected an error for non-numeric device id")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Models.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero batch size should not validate")
	}

	cfg = defaultConfig()
	cfg.OutputDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty output dir should not validate")
	}
}

func TestClassifierConfigMapping(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Models.OrtLibrary = "/lib/onnxruntime.so"
	cfg.Models.CacheDir = "/tmp/cache"
	cc := cfg.ClassifierConfig()
	if cc.OrtLibrary != "/lib/onnxruntime.so" {
		t.Fatalf("ort library = %s", cc.OrtLibrary)
	}
	if cc.DomainModelPath != cfg.Models.DomainModel {
		t.Fatalf("domain model = %s", cc.DomainModelPath)
	}
	if cc.CacheDir != "/tmp/cache" {
		t.Fatalf("cache dir = %s", cc.CacheDir)
	}
}
