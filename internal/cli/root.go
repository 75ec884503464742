// Package cli builds the embykeeper command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"embykeeper/internal/config"
	"embykeeper/internal/ocr"
)

// rootOptions carries persistent flag values and the state derived from
// them in PersistentPreRunE.
type rootOptions struct {
	configPath string
	logLevel   string
	assetsDir  string
	proxy      string
	mirrors    []string

	cfg config.Config
	log zerolog.Logger

	// launcher overrides how pool workers are spawned; nil re-executes the
	// running binary.
	launcher ocr.Launcher
	stderr   io.Writer
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&rootOptions{stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "embykeeper",
		Short:         "Captcha recognition through a pool of OCR worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (defaults EMBYKEEPER_LOG_LEVEL or info)")
	pf.StringVar(&o.assetsDir, "assets-dir", "", "Directory for downloaded models (defaults to the user cache dir)")
	pf.StringVar(&o.proxy, "proxy", "", "Proxy for asset downloads: http://, https://, socks5:// or socks5h://")
	pf.StringArrayVar(&o.mirrors, "mirror", nil, "Asset mirror base URL; repeat to set several, tried in order")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return o.load(cmd)
	}

	root.AddCommand(
		newOCRCmd(o),
		newWorkerCmd(o),
		newServeCmd(o),
		newAssetsCmd(o),
		newConfigCmd(o),
	)
	return root
}

// load resolves the effective configuration: .env, then the config file,
// then EMBYKEEPER_* variables for fields still unset, then explicit flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	// A missing .env is the common case.
	_ = godotenv.Load()

	var cfg config.Config
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("assets-dir") {
		cfg.AssetsDir = o.assetsDir
	}
	if flags.Changed("proxy") {
		cfg.Proxy = o.proxy
	}
	if flags.Changed("mirror") {
		cfg.Mirrors = append([]string(nil), o.mirrors...)
	}
	if _, err := cfg.Timeouts(); err != nil {
		return err
	}

	stderr := o.stderr
	if stderr == nil {
		stderr = cmd.ErrOrStderr()
	}
	log, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.log = log
	return nil
}
