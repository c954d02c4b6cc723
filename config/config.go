package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel int `yaml:"log_level"`

	// DraftRoot is the directory where saved draft folders are written.
	DraftRoot string `yaml:"draft_root"`

	// OverlapPolicy controls what happens when a new segment's target
	// interval collides with an existing one on the same track.
	// Valid values: "reject" (default) and "replace".
	OverlapPolicy string `yaml:"overlap_policy"`

	Probe        ProbeConfig        `yaml:"probe"`
	Downloads    DownloadConfig     `yaml:"downloads"`
	Upload       UploadConfig       `yaml:"upload"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
}

type ProbeConfig struct {
	// Attempts per material before it is marked failed.
	Attempts int `yaml:"attempts"`

	// TimeoutSeconds bounds a single probe attempt.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxParallel caps concurrent probes across distinct materials.
	MaxParallel int `yaml:"max_parallel"`
}

type DownloadConfig struct {
	// MaxConcurrent caps concurrent asset fetch/copy operations.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type UploadConfig struct {
	// Enabled turns on publishing of the saved draft archive to GCS.
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	ObjectPrefix    string `yaml:"object_prefix"`
	CredentialsFile string `yaml:"credentials_file"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// CapabilitiesConfig holds the closed name tables the consuming editor
// understands. Empty lists fall back to the built-in defaults.
type CapabilitiesConfig struct {
	Fonts       []string `yaml:"fonts"`
	Effects     []string `yaml:"effects"`
	Transitions []string `yaml:"transitions"`
	Masks       []string `yaml:"masks"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config *Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, fmt.Errorf("empty config file: %s", path)
	}

	config.applyDefaults()
	return config, nil
}

// Default returns a configuration with all defaults applied, for callers
// that do not use a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DraftRoot == "" {
		c.DraftRoot = "drafts"
	}
	if c.OverlapPolicy == "" {
		c.OverlapPolicy = "reject"
	}
	if c.Probe.Attempts == 0 {
		c.Probe.Attempts = 3
	}
	if c.Probe.TimeoutSeconds == 0 {
		c.Probe.TimeoutSeconds = 30
	}
	if c.Probe.MaxParallel == 0 {
		c.Probe.MaxParallel = 16
	}
	if c.Downloads.MaxConcurrent == 0 {
		c.Downloads.MaxConcurrent = 16
	}
}
