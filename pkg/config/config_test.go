package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "gateway.toml")
	cfg := NewDefault()
	cfg.Port = 9100
	cfg.APIKey = "sk-or-test"
	cfg.LogLevel = "debug"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Port != 9100 || loaded.APIKey != "sk-or-test" || loaded.LogLevel != "debug" {
		t.Fatalf("roundtrip mismatch: %+v", loaded)
	}
}

func TestLoadMissingFileReportsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want ErrNotExist", err)
	}
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	if err := os.WriteFile(path, []byte("port = 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PortRangeMin != 8880 || cfg.PortRangeMax != 8899 {
		t.Fatalf("port range = [%d, %d]", cfg.PortRangeMin, cfg.PortRangeMax)
	}
	if cfg.UpstreamBaseURL != DefaultUpstreamBaseURL {
		t.Fatalf("base url = %q", cfg.UpstreamBaseURL)
	}
	if cfg.DuplicateWindowMS != 5000 {
		t.Fatalf("duplicate window = %d", cfg.DuplicateWindowMS)
	}
}

func TestEnvCredentialOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	cfg := NewDefault()
	cfg.APIKey = "from-file"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv(EnvAPIKey, "from-env")
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.APIKey != "from-env" {
		t.Fatalf("APIKey = %q, want env override", loaded.APIKey)
	}
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	cfg := NewDefault()
	cfg.PortRangeMin = 9000
	cfg.PortRangeMax = 8000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("inverted range accepted")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := NewDefault()
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("port 70000 accepted")
	}
}

func TestExactPortSkipsRangeValidation(t *testing.T) {
	cfg := NewDefault()
	cfg.Port = 8080
	cfg.PortRangeMin = 0
	cfg.PortRangeMax = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("exact port rejected: %v", err)
	}
}

func TestConfiguredTracksAPIKey(t *testing.T) {
	cfg := NewDefault()
	if cfg.Configured() {
		t.Fatalf("empty config reports configured")
	}
	cfg.APIKey = "  "
	if cfg.Configured() {
		t.Fatalf("whitespace key reports configured")
	}
	cfg.APIKey = "sk-or-test"
	if !cfg.Configured() {
		t.Fatalf("key present but not configured")
	}
}

func TestNormalizeTrimsBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	if err := os.WriteFile(path, []byte("port = 0\nupstream_base_url = \"https://example.test/api/v1/\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpstreamBaseURL != "https://example.test/api/v1" {
		t.Fatalf("base url = %q", cfg.UpstreamBaseURL)
	}
}
