// Package service exposes the OCR pool to the HTTP layer: it parses request
// parameters, runs recognition, and projects pool state into API payloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"embykeeper/internal/ocr"
	"embykeeper/internal/registry"
	"embykeeper/pkg/types"
)

// badRequestError carries a 400 to the HTTP layer.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return 400 }

// Service implements httpapi.Service on top of an ocr.Registry.
type Service struct {
	pool      *ocr.Registry
	assetsDir string
	log       zerolog.Logger
	started   time.Time

	mu   sync.Mutex
	subs []*ocr.Subscription
}

// New constructs a Service. assetsDir is scanned for /models.
func New(pool *ocr.Registry, assetsDir string, log zerolog.Logger) *Service {
	return &Service{pool: pool, assetsDir: assetsDir, log: log, started: time.Now()}
}

// Recognize runs one image through the instance for model and charsetSpec.
func (s *Service) Recognize(ctx context.Context, model, charsetSpec string, image []byte, timeout time.Duration) (types.OCRResponse, error) {
	if len(image) == 0 {
		return types.OCRResponse{}, badRequestError{msg: "image body is required"}
	}
	inst, err := s.pool.Lookup(model, charsetSpec)
	if err != nil {
		if errors.Is(err, ocr.ErrTooManyConfigs) {
			return types.OCRResponse{}, err
		}
		return types.OCRResponse{}, badRequestError{msg: err.Error()}
	}
	start := time.Now()
	text, err := inst.Run(ctx, image, timeout)
	if err != nil {
		return types.OCRResponse{}, err
	}
	cfg := inst.Config()
	return types.OCRResponse{
		Text:       text,
		Model:      cfg.Model,
		Charset:    cfg.Charset.String(),
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

// Warm starts the worker for model and charsetSpec and holds a
// subscription on it until Close, exempting it from idle eviction.
func (s *Service) Warm(ctx context.Context, model, charsetSpec string) error {
	inst, err := s.pool.Lookup(model, charsetSpec)
	if err != nil {
		return err
	}
	sub := inst.Subscribe()
	if err := inst.Start(ctx); err != nil {
		sub.Release()
		return fmt.Errorf("warm %s: %w", inst.Config(), err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	s.log.Info().Str("ocr_config", inst.Config().String()).Msg("worker warmed")
	return nil
}

// ListModels returns the named models present in the assets directory.
func (s *Service) ListModels() ([]types.Model, error) {
	models, err := registry.LoadDir(s.assetsDir)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []types.Model{}
	}
	return models, nil
}

// Status builds a detailed status response for /status.
func (s *Service) Status() types.StatusResponse {
	snap := s.pool.Snapshot()
	resp := types.StatusResponse{
		Instances:      make([]types.InstanceStatus, 0, len(snap)),
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, st := range snap {
		if st.PID != 0 {
			resp.RunningWorkers++
		}
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			Model:       st.Model,
			Charset:     st.Charset,
			State:       string(st.State),
			PID:         st.PID,
			Pending:     st.Pending,
			Subscribers: st.Subscribers,
			LastActive:  st.LastActive.Unix(),
			LastError:   st.LastError,
		})
	}
	return resp
}

// Ready reports whether the pool accepts work.
func (s *Service) Ready() bool { return !s.pool.Closed() }

// Close releases warm subscriptions and stops every worker.
func (s *Service) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Release()
	}
	return s.pool.Close()
}
