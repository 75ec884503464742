package ocr

import (
	"reflect"
	"strings"
	"testing"

	"embykeeper/internal/ocr/charset"
)

func TestWorkerArgsRendersConfig(t *testing.T) {
	got := WorkerArgs(InferenceConfig{Model: "captcha", Charset: charset.FromRange(charset.Number)}, "/data", "socks5://127.0.0.1:1080", []string{"https://a", "https://b"})
	want := []string{
		"--model", "captcha",
		"--charset", "number",
		"--assets-dir", "/data",
		"--proxy", "socks5://127.0.0.1:1080",
		"--mirror", "https://a",
		"--mirror", "https://b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v\nwant %v", got, want)
	}
	if args := WorkerArgs(InferenceConfig{}, "", "", nil); len(args) != 0 {
		t.Fatalf("default config should need no flags, got %v", args)
	}
	custom := WorkerArgs(InferenceConfig{Charset: charset.Custom("number")}, "", "", nil)
	if !reflect.DeepEqual(custom, []string{"--alphabet", "number"}) {
		t.Fatalf("custom alphabet must not be rendered as a range: %v", custom)
	}
}

func TestExecLauncherDefaults(t *testing.T) {
	l := ExecLauncher{Path: "/usr/bin/embykeeper", Env: []string{"X_TEST=1"}}
	cmd, err := l.Command(InferenceConfig{Model: "m"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd.Path != "/usr/bin/embykeeper" {
		t.Fatalf("unexpected path %q", cmd.Path)
	}
	if got := strings.Join(cmd.Args[1:], " "); got != "ocr-worker --model m" {
		t.Fatalf("unexpected args %q", got)
	}
	if last := cmd.Env[len(cmd.Env)-1]; last != "X_TEST=1" {
		t.Fatalf("extra env not appended: %q", last)
	}
}
