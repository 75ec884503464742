package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("HOME override is unix-only")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if p, err := ExpandHome("~"); err != nil || p != home {
		t.Fatalf("expected %q, got %q err=%v", home, p, err)
	}
	exp, err := ExpandHome("~/.cache/embykeeper")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if want := filepath.Join(home, ".cache", "embykeeper"); exp != want {
		t.Fatalf("expected %q, got %q", want, exp)
	}
}

func TestResolveAssetsDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG cache layout is linux-only")
	}
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)
	got, err := ResolveAssetsDir("  ")
	if err != nil {
		t.Fatalf("ResolveAssetsDir: %v", err)
	}
	if want := filepath.Join(cache, "embykeeper", "data"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	rel, err := ResolveAssetsDir("assets")
	if err != nil || !filepath.IsAbs(rel) {
		t.Fatalf("expected absolute path, got %q err=%v", rel, err)
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	if PathExists(p) {
		t.Fatalf("missing file reported as existing")
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !PathExists(p) {
		t.Fatalf("existing file not found")
	}
}
