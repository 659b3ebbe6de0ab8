package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mergeFile(t *testing.T, cfg *Config, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadAndMerge(cfg, path); err != nil {
		t.Fatalf("loadAndMerge: %v", err)
	}
}

func TestMergeLaterFileWins(t *testing.T) {
	cfg := DefaultConfig()

	mergeFile(t, cfg, "server:\n  bind: \"0.0.0.0:1111\"\nparser:\n  model: first\n")
	mergeFile(t, cfg, "parser:\n  model: second\n")

	if cfg.Server.Bind != "0.0.0.0:1111" {
		t.Errorf("bind = %q, want value from the first file", cfg.Server.Bind)
	}
	if cfg.Parser.Model != "second" {
		t.Errorf("model = %q, want the later override", cfg.Parser.Model)
	}
}

func TestMergeExplicitFalseOverridesTrue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Images.Enabled = true
	cfg.Tracing.Enabled = true

	mergeFile(t, cfg, "images:\n  enabled: false\ntracing:\n  enabled: false\n")

	if cfg.Images.Enabled {
		t.Error("an explicit images.enabled: false must override a true base")
	}
	if cfg.Tracing.Enabled {
		t.Error("an explicit tracing.enabled: false must override a true base")
	}
}

func TestMergeAbsentBoolKeepsBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.EchoStderr = true

	mergeFile(t, cfg, "logging:\n  level: debug\n")

	if !cfg.Logging.EchoStderr {
		t.Error("a file that never mentions echo_stderr must not reset it")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestMergeDurations(t *testing.T) {
	cfg := DefaultConfig()

	mergeFile(t, cfg, "parser:\n  timeout: 5s\nflags:\n  poll_interval: 2m\n")

	if cfg.Parser.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Parser.Timeout)
	}
	if cfg.Flags.PollInterval != 2*time.Minute {
		t.Errorf("poll interval = %v", cfg.Flags.PollInterval)
	}
}

func TestMergeGrantsByPermission(t *testing.T) {
	cfg := DefaultConfig()

	mergeFile(t, cfg, "permissions:\n  grants:\n    products.write: [merchant]\n    posts.write: [writer]\n")
	mergeFile(t, cfg, "permissions:\n  grants:\n    products.write: [admin]\n")

	if got := cfg.Permissions.Grants["products.write"]; len(got) != 1 || got[0] != "admin" {
		t.Errorf("products.write = %v, want the later grant list", got)
	}
	if got := cfg.Permissions.Grants["posts.write"]; len(got) != 1 || got[0] != "writer" {
		t.Errorf("posts.write = %v, earlier grants must survive", got)
	}
}

func TestMergeRejectsBadYAML(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [broken\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadAndMerge(cfg, path); err == nil {
		t.Fatal("broken YAML must fail")
	}
}

func TestFieldSet(t *testing.T) {
	raw := map[string]any{
		"images": map[string]any{"enabled": false},
		"server": map[string]any{"bind": "x"},
	}

	if !fieldSet(raw, "images", "enabled") {
		t.Error("images.enabled is set")
	}
	if fieldSet(raw, "images", "timeout") {
		t.Error("images.timeout is not set")
	}
	if fieldSet(raw, "tracing", "enabled") {
		t.Error("tracing.enabled is not set")
	}
	if fieldSet(nil, "a") {
		t.Error("nil map has nothing set")
	}
}
