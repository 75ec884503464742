package cli

import (
	"github.com/prometheus/client_golang/prometheus"

	"embykeeper/internal/common/fsutil"
	"embykeeper/internal/ocr"
)

// resolvedAssetsDir expands the configured assets directory or falls back
// to the per-user cache location.
func (o *rootOptions) resolvedAssetsDir() (string, error) {
	return fsutil.ResolveAssetsDir(o.cfg.AssetsDir)
}

// newPool builds the worker registry from the effective configuration.
// reg receives the pool metrics when non-nil.
func (o *rootOptions) newPool(reg prometheus.Registerer) (*ocr.Registry, error) {
	dir, err := o.resolvedAssetsDir()
	if err != nil {
		return nil, err
	}
	to, err := o.cfg.Timeouts()
	if err != nil {
		return nil, err
	}
	launcher := o.launcher
	if launcher == nil {
		launcher = ocr.ExecLauncher{AssetsDir: dir, Proxy: o.cfg.Proxy, Mirrors: o.cfg.Mirrors}
	}
	opts := ocr.Options{
		Launcher:     launcher,
		IdleTimeout:  to.Idle,
		RunTimeout:   to.Run,
		PollInterval: to.Poll,
		StopGrace:    to.Grace,
		Logger:       o.log.With().Str("component", "ocr").Logger(),
	}
	if reg != nil {
		opts.Metrics = ocr.NewMetrics(reg)
	}
	return ocr.NewRegistry(opts), nil
}
