package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviders lists the adapter names the engine can construct.
var ValidProviders = []string{"deepgram", "assemblyai", "soniox", "dashscope", "relay"}

// validLogLevels lists accepted server.log_level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Transcribe.Provider == "" {
		cfg.Transcribe.Provider = "deepgram"
	}
	if cfg.Session.RecordingsDir == "" {
		cfg.Session.RecordingsDir = "recordings"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !slices.Contains(ValidProviders, cfg.Transcribe.Provider) {
		errs = append(errs, fmt.Errorf("transcribe.provider %q is unknown; valid values: %v", cfg.Transcribe.Provider, ValidProviders))
	}

	if cfg.Transcribe.BaseURL == "" && cfg.Transcribe.Provider == "relay" {
		errs = append(errs, errors.New("transcribe.base_url is required for the relay provider"))
	}

	if cfg.Transcribe.APIKey == "" {
		slog.Warn("transcribe.api_key is empty; set it in the config or the environment before starting a session")
	}

	for i, lang := range cfg.Session.Languages {
		if lang == "" {
			errs = append(errs, fmt.Errorf("session.languages[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}
