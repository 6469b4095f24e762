package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"textcurator/classifier"
)

const (
	configPathEnv   = "TEXTCURATOR_CONFIG"
	classifierEnv   = "TEXTCURATOR_CLASSIFIER"
	outputDirEnv    = "TEXTCURATOR_OUTPUT_DIR"
	ortLibraryEnv   = "TEXTCURATOR_ORT_LIBRARY"
	domainModelEnv  = "TEXTCURATOR_DOMAIN_MODEL"
	qualityModelEnv = "TEXTCURATOR_QUALITY_MODEL"
	tokenizerEnv    = "TEXTCURATOR_TOKENIZER"
	batchSizeEnv    = "TEXTCURATOR_BATCH_SIZE"
	devicesEnv      = "TEXTCURATOR_DEVICES"
	quietEnv        = "TEXTCURATOR_QUIET"
)

// Config holds high-level settings required across the application.
type Config struct {
	Classifier string        `yaml:"classifier"`
	OutputDir  string        `yaml:"outputDir"`
	Quiet      bool          `yaml:"quiet"`
	Cluster    ClusterConfig `yaml:"cluster"`
	Models     ModelConfig   `yaml:"models"`
}

// ClusterConfig shapes the local worker pool.
type ClusterConfig struct {
	Devices    []int `yaml:"devices"`
	QueueDepth int   `yaml:"queueDepth"`
}

// ModelConfig describes the inference runtime and model artifacts.
type ModelConfig struct {
	OrtLibrary   string `yaml:"ortLibrary"`
	DomainModel  string `yaml:"domainModel"`
	QualityModel string `yaml:"qualityModel"`
	Tokenizer    string `yaml:"tokenizer"`
	MaxSeqLen    int    `yaml:"maxSeqLen"`
	BatchSize    int    `yaml:"batchSize"`
	CacheDir     string `yaml:"cacheDir"`
}

// ClassifierConfig converts the model section into the classifier package's
// runtime configuration.
func (c Config) ClassifierConfig() classifier.Config {
	return classifier.Config{
		OrtLibrary:       c.Models.OrtLibrary,
		DomainModelPath:  c.Models.DomainModel,
		QualityModelPath: c.Models.QualityModel,
		TokenizerPath:    c.Models.Tokenizer,
		MaxSeqLen:        c.Models.MaxSeqLen,
		BatchSize:        c.Models.BatchSize,
		CacheDir:         c.Models.CacheDir,
	}
}

// Load reads YAML configuration (if present) and applies environment
// overrides. A missing file is not an error; defaults apply.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate rejects settings no run could succeed with. The classifier name
// itself is validated later by classifier.Resolve so its dedicated error
// branch stays in one place.
func (c Config) Validate() error {
	if c.Models.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Models.BatchSize)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(classifierEnv); v != "" {
		c.Classifier = v
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(ortLibraryEnv); v != "" {
		c.Models.OrtLibrary = v
	}
	if v := os.Getenv(domainModelEnv); v != "" {
		c.Models.DomainModel = v
	}
	if v := os.Getenv(qualityModelEnv); v != "" {
		c.Models.QualityModel = v
	}
	if v := os.Getenv(tokenizerEnv); v != "" {
		c.Models.Tokenizer = v
	}
	if v := os.Getenv(batchSizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Models.BatchSize = n
		} else {
			log.Printf("config: invalid %s=%q: %v", batchSizeEnv, v, err)
		}
	}
	if v := os.Getenv(devicesEnv); v != "" {
		if devices, err := parseDevices(v); err == nil {
			c.Cluster.Devices = devices
		} else {
			log.Printf("config: invalid %s=%q: %v", devicesEnv, v, err)
		}
	}
	if v := os.Getenv(quietEnv); v != "" {
		c.Quiet = isTruthy(v)
	}
}

// parseDevices splits a comma-separated device ID list ("0,1,2").
func parseDevices(raw string) ([]int, error) {
	fields := strings.Split(raw, ",")
	devices := make([]int, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("device id %q: %w", field, err)
		}
		devices = append(devices, id)
	}
	return devices, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func mergeConfig(base, override Config) Config {
	if override.Classifier != "" {
		base.Classifier = override.Classifier
	}
	if override.OutputDir != "" {
		base.OutputDir = override.OutputDir
	}
	if override.Quiet {
		base.Quiet = true
	}

	if len(override.Cluster.Devices) > 0 {
		base.Cluster.Devices = override.Cluster.Devices
	}
	if override.Cluster.QueueDepth > 0 {
		base.Cluster.QueueDepth = override.Cluster.QueueDepth
	}

	if override.Models.OrtLibrary != "" {
		base.Models.OrtLibrary = override.Models.OrtLibrary
	}
	if override.Models.DomainModel != "" {
		base.Models.DomainModel = override.Models.DomainModel
	}
	if override.Models.QualityModel != "" {
		base.Models.QualityModel = override.Models.QualityModel
	}
	if override.Models.Tokenizer != "" {
		base.Models.Tokenizer = override.Models.Tokenizer
	}
	if override.Models.MaxSeqLen > 0 {
		base.Models.MaxSeqLen = override.Models.MaxSeqLen
	}
	if override.Models.BatchSize > 0 {
		base.Models.BatchSize = override.Models.BatchSize
	}
	if override.Models.CacheDir != "" {
		base.Models.CacheDir = override.Models.CacheDir
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Classifier: classifier.TypeDomain,
		OutputDir:  "output_dir",
		Models: ModelConfig{
			DomainModel:  "models/domain_classifier.onnx",
			QualityModel: "models/quality_classifier.onnx",
			Tokenizer:    "models/tokenizer.json",
			MaxSeqLen:    512,
			BatchSize:    256,
		},
	}
}
