package ocr

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Launcher builds the command for a worker serving cfg. The command is not
// started; the pool wires its pipes and starts it.
type Launcher interface {
	Command(cfg InferenceConfig) (*exec.Cmd, error)
}

// ExecLauncher re-executes a binary (by default the running one) with the
// worker subcommand.
type ExecLauncher struct {
	// Path of the binary; defaults to os.Executable().
	Path string
	// Args precede the per-config flags; defaults to ["ocr-worker"].
	Args []string
	// Env is appended to the parent's environment.
	Env []string

	AssetsDir string
	Proxy     string
	Mirrors   []string
}

// Command implements Launcher.
func (l ExecLauncher) Command(cfg InferenceConfig) (*exec.Cmd, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("worker binary path is empty")
	}
	args := l.Args
	if args == nil {
		args = []string{"ocr-worker"}
	}
	args = append(append([]string(nil), args...), WorkerArgs(cfg, l.AssetsDir, l.Proxy, l.Mirrors)...)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	return cmd, nil
}

// WorkerArgs renders the flags understood by the ocr-worker subcommand.
// Range charsets and literal alphabets use separate flags so an alphabet
// can never be mistaken for a range name.
func WorkerArgs(cfg InferenceConfig, assetsDir, proxy string, mirrors []string) []string {
	var args []string
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	switch {
	case cfg.Charset.Custom != "":
		args = append(args, "--alphabet", cfg.Charset.Custom)
	case !cfg.Charset.IsZero():
		args = append(args, "--charset", cfg.Charset.Range.String())
	}
	if assetsDir != "" {
		args = append(args, "--assets-dir", assetsDir)
	}
	if proxy != "" {
		args = append(args, "--proxy", proxy)
	}
	for _, m := range mirrors {
		args = append(args, "--mirror", m)
	}
	return args
}
