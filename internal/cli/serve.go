package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"embykeeper/internal/httpapi"
	"embykeeper/internal/service"
)

const shutdownTimeout = 5 * time.Second

// warmSpec is a --warm value: "model", "model:charset" or ":charset".
type warmSpec struct {
	model   string
	charset string
}

func parseWarm(s string) (warmSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return warmSpec{}, errors.New("empty --warm value")
	}
	model, cs, _ := strings.Cut(s, ":")
	return warmSpec{model: strings.TrimSpace(model), charset: cs}, nil
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr    string
		warm    []string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the OCR HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") && o.cfg.Addr != "" {
				addr = o.cfg.Addr
			}
			if !cmd.Flags().Changed("cors-origin") {
				origins = o.cfg.CORSOrigins
			}
			specs := make([]warmSpec, 0, len(warm))
			for _, w := range warm {
				spec, err := parseWarm(w)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}

			dir, err := o.resolvedAssetsDir()
			if err != nil {
				return err
			}
			pool, err := o.newPool(prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			svc := service.New(pool, dir, o.log.With().Str("component", "service").Logger())
			defer func() {
				if err := svc.Close(); err != nil {
					o.log.Warn().Err(err).Msg("close service")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, spec := range specs {
				if err := svc.Warm(ctx, spec.model, spec.charset); err != nil {
					return err
				}
			}

			httpapi.SetLogger(o.log.With().Str("component", "http").Logger())
			httpapi.SetCORSOptions(len(origins) > 0, origins, nil, nil)
			httpapi.SetBaseContext(ctx)
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewMux(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				o.log.Info().Str("addr", addr).Str("assets_dir", dir).Msg("embykeeper listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			o.log.Info().Msg("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				o.log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	defaultAddr := ":8080"
	f := cmd.Flags()
	f.StringVar(&addr, "addr", defaultAddr, "HTTP listen address, e.g. :8080")
	f.StringArrayVar(&warm, "warm", nil, "Start and keep a worker alive: model, model:charset or :charset (repeatable)")
	f.StringArrayVar(&origins, "cors-origin", nil, "Allowed CORS origin (repeatable); CORS is off when none are set")
	return cmd
}
