package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type nested struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

type sample struct {
	Name     string   `yaml:"name" env:"SAMPLE_NAME"`
	Port     int      `yaml:"port"`
	Ratio    float64  `yaml:"ratio"`
	Enabled  bool     `yaml:"enabled"`
	Origins  []string `yaml:"origins"`
	Skipped  string   `yaml:"skipped" env:"-"`
	Upstream nested   `yaml:"upstream"`
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "slots")
	t.Setenv("PORT", "9090")
	t.Setenv("RATIO", "0.5")
	t.Setenv("ENABLED", "true")
	t.Setenv("ORIGINS", "a.example, b.example,,")
	t.Setenv("SKIPPED", "ignored")
	t.Setenv("UPSTREAM_ADDR", "localhost:6379")
	t.Setenv("UPSTREAM_TIMEOUT", "250ms")

	cfg := sample{Name: "default", Port: 1}
	if err := Load(&cfg, ""); err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Name != "slots" {
		t.Fatalf("expected name override, got %q", cfg.Name)
	}
	if cfg.Port != 9090 || cfg.Ratio != 0.5 || !cfg.Enabled {
		t.Fatalf("unexpected scalar values: %+v", cfg)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[1] != "b.example" {
		t.Fatalf("unexpected origins: %v", cfg.Origins)
	}
	if cfg.Skipped != "" {
		t.Fatalf("expected skipped field untouched, got %q", cfg.Skipped)
	}
	if cfg.Upstream.Addr != "localhost:6379" || cfg.Upstream.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected nested values: %+v", cfg.Upstream)
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "30")

	var cfg sample
	if err := Load(&cfg, ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.Upstream.Timeout)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "name: from-file\nport: 8000\nupstream:\n  addr: file:1\n  timeout: 2s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("PORT", "8001")

	var cfg sample
	if err := Load(&cfg, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Fatalf("expected file value, got %q", cfg.Name)
	}
	if cfg.Port != 8001 {
		t.Fatalf("expected env to win over file, got %d", cfg.Port)
	}
	if cfg.Upstream.Timeout != 2*time.Second {
		t.Fatalf("expected yaml duration, got %s", cfg.Upstream.Timeout)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if err := Load(nil, ""); err == nil {
		t.Fatalf("expected error for nil target")
	}
	var notStruct int
	if err := Load(&notStruct, ""); err == nil {
		t.Fatalf("expected error for non-struct target")
	}

	t.Setenv("PORT", "not-a-number")
	var cfg sample
	if err := Load(&cfg, ""); err == nil {
		t.Fatalf("expected parse error")
	}
}
