// Package config provides the configuration schema and loader for the
// Auralis listening engine host.
package config

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; API keys come from the
// environment and are merged by the caller.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Hooks      HooksConfig      `yaml:"hooks"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// MetricsAddr is the address the Prometheus /metrics endpoint listens on.
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// SessionConfig holds the per-session recognition settings.
type SessionConfig struct {
	// Languages is the list of BCP-47 language tags to recognise.
	Languages []string `yaml:"languages"`

	// Keywords is the vocabulary boost list (proper nouns, product names).
	Keywords []string `yaml:"keywords"`

	// RecordEnabled writes the session WAV alongside the transcript.
	RecordEnabled bool `yaml:"record_enabled"`

	// RecordingsDir is where session WAVs are stored.
	RecordingsDir string `yaml:"recordings_dir"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// MicDevice names the input device to capture. Empty uses the system
	// default.
	MicDevice string `yaml:"mic_device"`
}

// TranscribeConfig selects and configures the transcription provider.
type TranscribeConfig struct {
	// Provider selects the adapter: "deepgram", "assemblyai", "soniox",
	// "dashscope", or "relay".
	Provider string `yaml:"provider"`

	// Model selects a model within the provider (e.g. "nova-3").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the provider. Usually supplied via the
	// environment instead of the file.
	APIKey string `yaml:"api_key"`
}

// HooksConfig lists commands run at session boundaries. Each command gets
// the session ID appended as an argument and a bounded runtime.
type HooksConfig struct {
	OnSessionStart []string `yaml:"on_session_start"`
	OnSessionStop  []string `yaml:"on_session_stop"`
}
