package ocr

import (
	"context"
	"fmt"
	"time"

	"embykeeper/internal/ocr/protocol"
)

// monitor owns one session: it resolves replies, stops the worker once it
// has been idle with no subscribers, and turns an unexpected exit into a
// crash. It returns when the session is stopped by anyone.
func (i *Instance) monitor(ctx context.Context, s *session) {
	ticker := time.NewTicker(i.opts.PollInterval)
	defer ticker.Stop()
	for {
		if done := i.monitorStep(ctx, s, ticker.C); done {
			return
		}
	}
}

// monitorStep handles one event. A panic is logged and the loop continues.
func (i *Instance) monitorStep(ctx context.Context, s *session, tick <-chan time.Time) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Error().Interface("panic", r).Msg("monitor iteration panicked")
			done = false
		}
	}()
	select {
	case <-ctx.Done():
		return true
	case reply, ok := <-s.proc.replies:
		if !ok {
			i.crashed(s)
			return true
		}
		i.dispatch(s, reply)
	case now := <-tick:
		if i.idle(now) {
			i.log.Debug().Dur("idle_timeout", i.opts.IdleTimeout).Msg("evicting idle worker")
			i.stopSession(s, reasonIdle, ErrWorkerStopped)
			return true
		}
	}
	return false
}

func (i *Instance) idle(now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subscribers == 0 && now.Sub(i.lastActive) > i.opts.IdleTimeout
}

func (i *Instance) dispatch(s *session, reply protocol.Reply) {
	switch r := reply.(type) {
	case protocol.Success:
		if !s.pending.resolve(r.RequestID, outcome{text: r.Text}) {
			i.log.Debug().Str("request_id", r.RequestID).Msg("discarding reply for unknown request")
		}
	case protocol.Failure:
		err := &InferenceError{RequestID: r.RequestID, Message: r.Message}
		if !s.pending.resolve(r.RequestID, outcome{err: err}) {
			i.log.Debug().Str("request_id", r.RequestID).Msg("discarding failure for unknown request")
		}
	case protocol.Fatal:
		err := &AssetError{Config: i.cfg, Message: r.Message}
		s.fatal = err
		n := s.pending.failAll(err)
		i.log.Error().Str("error", r.Message).Int("failed_pending", n).Msg("worker failed to initialize")
		i.opts.Publisher.Publish(Event{Name: EventWorkerFatal, Config: i.cfg.String(), Fields: map[string]any{"error": r.Message}})
	default:
		i.log.Warn().Str("type", fmt.Sprintf("%T", reply)).Msg("discarding unexpected reply")
	}
}

// crashed handles end of the worker's output. Every reply written before
// exit has already been dispatched, so what is still pending never gets an
// answer.
func (i *Instance) crashed(s *session) {
	i.mu.Lock()
	stopping := s.stopping
	i.mu.Unlock()
	if stopping {
		// Output ended because someone else is stopping the worker.
		<-s.stopped
		return
	}
	failErr := s.fatal
	if failErr == nil {
		<-s.proc.exited
		failErr = fmt.Errorf("%w: worker exited unexpectedly: %v", ErrWorkerStopped, s.proc.exitError())
	}
	i.log.Warn().Err(failErr).Msg("worker exited")
	i.stopSession(s, reasonCrash, failErr)
}
