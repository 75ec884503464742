package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nassets_dir: /tmp/assets\nproxy: socks5://127.0.0.1:1080\nmirrors:\n  - https://a\n  - https://b\nidle_timeout: 5m\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.AssetsDir != "/tmp/assets" || cfg.Proxy != "socks5://127.0.0.1:1080" || len(cfg.Mirrors) != 2 || cfg.IdleTimeout != "5m" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","assets_dir":"/m","run_timeout":"30s","log_level":"debug","cors_origins":["*"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.AssetsDir != "/m" || cfg.RunTimeout != "30s" || cfg.LogLevel != "debug" || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nassets_dir=\"/x\"\npoll_interval=\"50ms\"\nstop_grace=\"2s\"\nmirrors=[\"https://m\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.AssetsDir != "/x" || cfg.PollInterval != "50ms" || cfg.StopGrace != "2s" || cfg.Mirrors[0] != "https://m" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestTimeoutsParse(t *testing.T) {
	cfg := Config{IdleTimeout: "300s", RunTimeout: " 1m ", PollInterval: "100ms"}
	to, err := cfg.Timeouts()
	if err != nil {
		t.Fatalf("Timeouts: %v", err)
	}
	if to.Idle != 300*time.Second || to.Run != time.Minute || to.Poll != 100*time.Millisecond || to.Grace != 0 {
		t.Fatalf("unexpected timeouts: %+v", to)
	}
}
