package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  log_level: debug
  metrics_addr: ":9090"
session:
  languages: ["en", "de"]
  keywords: ["Auralis"]
  record_enabled: true
  recordings_dir: /tmp/recordings
audio:
  mic_device: "USB Microphone"
transcribe:
  provider: deepgram
  model: nova-3
  api_key: test-key
hooks:
  on_session_start: ["notify-send listening"]
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Server.LogLevel)
	}
	if len(cfg.Session.Languages) != 2 {
		t.Errorf("languages = %v, want 2 entries", cfg.Session.Languages)
	}
	if !cfg.Session.RecordEnabled {
		t.Error("record_enabled not parsed")
	}
	if cfg.Transcribe.Provider != "deepgram" {
		t.Errorf("provider = %q, want deepgram", cfg.Transcribe.Provider)
	}
	if len(cfg.Hooks.OnSessionStart) != 1 {
		t.Errorf("hooks = %v, want 1 entry", cfg.Hooks.OnSessionStart)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("transcribe:\n  api_key: k\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Transcribe.Provider != "deepgram" {
		t.Errorf("default provider = %q, want deepgram", cfg.Transcribe.Provider)
	}
	if cfg.Session.RecordingsDir != "recordings" {
		t.Errorf("default recordings dir = %q, want recordings", cfg.Session.RecordingsDir)
	}
}

func TestLoadFromReader_UnknownProvider(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("transcribe:\n  provider: nonsense\n"))
	if err == nil || !strings.Contains(err.Error(), "transcribe.provider") {
		t.Errorf("err = %v, want provider validation failure", err)
	}
}

func TestLoadFromReader_RelayRequiresBaseURL(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("transcribe:\n  provider: relay\n"))
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Errorf("err = %v, want base_url validation failure", err)
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  log_level: loud\n"))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("err = %v, want log_level validation failure", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_section:\n  x: 1\n"))
	if err == nil {
		t.Error("unknown top-level field should be rejected")
	}
}

func TestLoadFromReader_EmptyLanguageRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("session:\n  languages: [\"en\", \"\"]\n"))
	if err == nil || !strings.Contains(err.Error(), "languages") {
		t.Errorf("err = %v, want languages validation failure", err)
	}
}
