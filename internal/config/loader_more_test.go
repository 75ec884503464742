package config

import (
	"strings"
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "assets_dir": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nassets_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "idle_timeout: soon\n")
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "idle_timeout") {
		t.Fatalf("expected idle_timeout parse error, got %v", err)
	}
	if _, err := (Config{StopGrace: "-1s"}).Timeouts(); err == nil {
		t.Fatalf("expected negative duration error")
	}
}

func TestApplyEnvFillsOnlyUnsetFields(t *testing.T) {
	env := map[string]string{
		"EMBYKEEPER_ADDR":         ":1234",
		"EMBYKEEPER_ASSETS_DIR":   "/env/assets",
		"EMBYKEEPER_MIRRORS":      "https://a, ,https://b",
		"EMBYKEEPER_RUN_TIMEOUT":  "10s",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg := Config{Addr: ":9999"}
	cfg.ApplyEnv(lookup)
	if cfg.Addr != ":9999" {
		t.Fatalf("file value must win over env, got %q", cfg.Addr)
	}
	if cfg.AssetsDir != "/env/assets" || cfg.RunTimeout != "10s" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Mirrors) != 2 || cfg.Mirrors[1] != "https://b" {
		t.Fatalf("unexpected mirrors: %v", cfg.Mirrors)
	}
}

func TestSplitCSV(t *testing.T) {
	if got := SplitCSV("  "); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := SplitCSV("a,,b "); len(got) != 2 || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}
