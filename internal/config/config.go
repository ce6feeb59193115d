// Package config provides the configuration structure for the speech-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied to fields the TOML file leaves unset.
const (
	defaultHTTPHost           = "0.0.0.0"
	defaultHTTPPort           = 8000
	defaultEngineBackend      = "process"
	defaultEngineDevice       = "cpu"
	defaultTimeoutSeconds     = 300
	defaultPromptTargetCount  = 16000
	defaultPromptMaxSeconds   = 30
	defaultRetentionAgeMin    = 60
	defaultSweepIntervalMin   = 10
	defaultOutputDir          = "audio_files"
	defaultUploadDir          = "uploads"
	defaultCORSAllowedOrigins = "http://localhost:5173"
)

// Prompt reshaper strategies recognized by PromptConfig.Reshaper.
const (
	ReshaperNone  = "none"
	ReshaperBlock = "block"
)

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// Addr returns the host:port listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// EngineConfig selects and parameterizes the synthesis backend.
type EngineConfig struct {
	// Backend is "process" (local inference binary) or "remote" (HTTP).
	Backend        string `toml:"backend"`
	BinaryPath     string `toml:"binary_path"`
	ModelPath      string `toml:"model_path"`
	ServiceURL     string `toml:"service_url"`
	Device         string `toml:"device"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PromptConfig controls conditioning-window preparation.
type PromptConfig struct {
	// TargetSamples is the fixed conditioning length the engine expects.
	TargetSamples int `toml:"target_samples"`
	// MaxSeconds caps ingested reference audio; zero disables the cap.
	MaxSeconds int `toml:"max_seconds"`
	// Reshaper is "none" or "block"; block uses ReshapeRows x ReshapeCols.
	Reshaper    string `toml:"reshaper"`
	ReshapeRows int    `toml:"reshape_rows"`
	ReshapeCols int    `toml:"reshape_cols"`
}

// PathsConfig holds the directory layout.
type PathsConfig struct {
	OutputDir   string `toml:"output_dir"`
	UploadDir   string `toml:"upload_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// RetentionConfig controls the rendered-file sweep.
type RetentionConfig struct {
	MaxAgeMinutes        int `toml:"max_age_minutes"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// NATSConfig holds the optional NATS job-path settings.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	TextProcessedSubject   string `toml:"text_processed_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Engine    EngineConfig    `toml:"engine"`
	Prompt    PromptConfig    `toml:"prompt"`
	Paths     PathsConfig     `toml:"paths"`
	Retention RetentionConfig `toml:"retention"`
	NATS      NATSConfig      `toml:"nats"`
}

// Load loads the configuration via the central configurator and fills in
// defaults for anything the file did not set.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = defaultHTTPHost
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = defaultHTTPPort
	}

	if len(c.HTTP.CORSAllowedOrigins) == 0 {
		c.HTTP.CORSAllowedOrigins = []string{defaultCORSAllowedOrigins}
	}

	if c.Engine.Backend == "" {
		c.Engine.Backend = defaultEngineBackend
	}

	if c.Engine.Device == "" {
		c.Engine.Device = defaultEngineDevice
	}

	if c.Engine.TimeoutSeconds == 0 {
		c.Engine.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Prompt.TargetSamples == 0 {
		c.Prompt.TargetSamples = defaultPromptTargetCount
	}

	if c.Prompt.MaxSeconds == 0 {
		c.Prompt.MaxSeconds = defaultPromptMaxSeconds
	}

	if c.Prompt.Reshaper == "" {
		c.Prompt.Reshaper = ReshaperNone
	}

	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaultOutputDir
	}

	if c.Paths.UploadDir == "" {
		c.Paths.UploadDir = defaultUploadDir
	}

	if c.Retention.MaxAgeMinutes == 0 {
		c.Retention.MaxAgeMinutes = defaultRetentionAgeMin
	}

	if c.Retention.SweepIntervalMinutes == 0 {
		c.Retention.SweepIntervalMinutes = defaultSweepIntervalMin
	}
}
