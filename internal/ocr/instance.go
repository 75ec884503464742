package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"embykeeper/internal/ocr/protocol"
)

// State represents the lifecycle state of an Instance.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

// Stop reasons, used in events, logs and metrics.
const (
	reasonForced = "forced"
	reasonIdle   = "idle"
	reasonCrash  = "crash"
	reasonClosed = "closed"
)

// session is one started worker process and everything scoped to it. A
// stopped session is never reused.
type session struct {
	gen      uint64
	proc     *process
	pending  *correlator
	cancel   context.CancelFunc
	stopping bool
	stopped  chan struct{}
	// fatal is set by the monitor when the worker reports an init failure.
	fatal error
}

// Instance is the pool entry for one InferenceConfig. It lazily starts a
// worker on first Run, multiplexes concurrent runs over it, and lets the
// monitor stop it once nobody holds a subscription and it has been idle.
type Instance struct {
	cfg  InferenceConfig
	opts Options
	log  zerolog.Logger

	mu          sync.Mutex
	state       State
	sess        *session
	gen         uint64
	subscribers int
	lastActive  time.Time
	lastErr     string
	closed      bool
}

func newInstance(cfg InferenceConfig, opts Options) *Instance {
	return &Instance{
		cfg:        cfg,
		opts:       opts,
		log:        opts.Logger.With().Str("ocr_config", cfg.String()).Logger(),
		state:      StateIdle,
		lastActive: time.Now(),
	}
}

// Config returns the configuration this instance serves.
func (i *Instance) Config() InferenceConfig { return i.cfg }

// Subscription is a reference held by a long-lived user of an Instance.
// While any subscription is held the worker is exempt from idle eviction.
type Subscription struct {
	inst *Instance
	once sync.Once
}

// Release drops the reference. Extra calls are no-ops, so it is safe to
// defer alongside an explicit early release.
func (s *Subscription) Release() {
	s.once.Do(s.inst.Unsubscribe)
}

// Subscribe increments the subscriber count and refreshes the activity
// time. It never starts a worker.
func (i *Instance) Subscribe() *Subscription {
	i.mu.Lock()
	i.subscribers++
	i.lastActive = time.Now()
	i.mu.Unlock()
	return &Subscription{inst: i}
}

// Unsubscribe decrements the subscriber count, never below zero. It never
// stops the worker directly.
func (i *Instance) Unsubscribe() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastActive = time.Now()
	if i.subscribers == 0 {
		i.log.Warn().Msg("unsubscribe without subscription")
		return
	}
	i.subscribers--
}

// Start launches the worker if it is not running. Run calls it implicitly.
func (i *Instance) Start(ctx context.Context) error {
	_, err := i.ensureSession(ctx)
	return err
}

// Run classifies image on the worker and returns the recognized text.
// A non-positive timeout selects the configured default. The request is
// removed from the pending table on every return path.
func (i *Instance) Run(ctx context.Context, image []byte, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = i.opts.RunTimeout
	}
	start := time.Now()
	text, err := i.run(ctx, image, timeout)
	i.opts.Metrics.observeRun(err, time.Since(start))
	i.touch()
	return text, err
}

func (i *Instance) run(ctx context.Context, image []byte, timeout time.Duration) (string, error) {
	s, err := i.ensureSession(ctx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	ch, err := s.pending.register(id)
	if err != nil {
		return "", err
	}
	i.opts.Metrics.pendingInc()
	defer func() {
		s.pending.forget(id)
		i.opts.Metrics.pendingDec()
	}()
	i.touch()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The write blocks while the worker is not reading stdin, so it runs
	// beside the wait. A kill on stop unblocks it.
	submitted := make(chan error, 1)
	go func() {
		submitted <- s.proc.submit(protocol.Process{RequestID: id, Image: image})
	}()

	for {
		select {
		case err := <-submitted:
			submitted = nil
			if err == nil {
				continue
			}
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				return "", fmt.Errorf("submit job: %w", err)
			}
			// The worker is going away; the monitor fails this request shortly.
			i.log.Debug().Err(err).Str("request_id", id).Msg("submit failed")
		case o := <-ch:
			return o.text, o.err
		case <-timer.C:
			i.log.Debug().Str("request_id", id).Dur("timeout", timeout).Msg("run timed out")
			return "", &TimeoutError{Timeout: timeout}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (i *Instance) touch() {
	i.mu.Lock()
	i.lastActive = time.Now()
	i.mu.Unlock()
}

// ensureSession returns the live session, starting one if needed. A
// session that is being stopped is waited out first so two workers for the
// same config never overlap.
func (i *Instance) ensureSession(ctx context.Context) (*session, error) {
	for {
		i.mu.Lock()
		if i.closed {
			i.mu.Unlock()
			return nil, ErrClosed
		}
		s := i.sess
		if s == nil {
			s, err := i.startLocked()
			i.mu.Unlock()
			return s, err
		}
		if !s.stopping {
			i.mu.Unlock()
			return s, nil
		}
		i.mu.Unlock()
		select {
		case <-s.stopped:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (i *Instance) startLocked() (*session, error) {
	prev := i.state
	i.state = StateStarting
	cmd, err := i.opts.Launcher.Command(i.cfg)
	if err == nil {
		var proc *process
		proc, err = startProcess(cmd, i.log)
		if err == nil {
			i.gen++
			ctx, cancel := context.WithCancel(context.Background())
			s := &session{
				gen:     i.gen,
				proc:    proc,
				pending: newCorrelator(),
				cancel:  cancel,
				stopped: make(chan struct{}),
			}
			i.sess = s
			i.state = StateRunning
			i.lastActive = time.Now()
			i.lastErr = ""
			go i.monitor(ctx, s)
			i.log.Info().Int("pid", proc.pid).Uint64("session", s.gen).Msg("worker started")
			i.opts.Publisher.Publish(Event{Name: EventWorkerStart, Config: i.cfg.String(), Fields: map[string]any{"pid": proc.pid}})
			i.opts.Metrics.workerStarted()
			return s, nil
		}
	}
	i.state = prev
	i.lastErr = err.Error()
	i.log.Error().Err(err).Msg("worker start failed")
	return nil, fmt.Errorf("start worker for %s: %w", i.cfg, err)
}

// stopSession tears s down: fails its pending requests with failErr, asks
// the worker to exit and kills it after the grace period. Concurrent
// callers for the same session wait for the first to finish. A session
// that is no longer current is ignored.
func (i *Instance) stopSession(s *session, reason string, failErr error) {
	i.mu.Lock()
	if i.sess != s {
		i.mu.Unlock()
		return
	}
	if s.stopping {
		i.mu.Unlock()
		<-s.stopped
		return
	}
	s.stopping = true
	i.state = StateStopping
	i.mu.Unlock()

	failed := s.pending.failAll(failErr)
	s.cancel()
	s.proc.stop(i.opts.StopGrace)

	i.mu.Lock()
	i.sess = nil
	if reason == reasonCrash {
		i.state = StateCrashed
		i.lastErr = failErr.Error()
	} else {
		i.state = StateIdle
	}
	i.mu.Unlock()
	close(s.stopped)

	name := EventWorkerStop
	if reason == reasonCrash {
		name = EventWorkerCrash
	}
	i.log.Info().Int("pid", s.proc.pid).Str("reason", reason).Int("failed_pending", failed).Msg("worker stopped")
	i.opts.Publisher.Publish(Event{Name: name, Config: i.cfg.String(), Fields: map[string]any{
		"pid": s.proc.pid, "reason": reason, "failed_pending": failed,
	}})
	i.opts.Metrics.workerStopped(reason)
}

// ForceStop stops the worker now. Pending requests fail with
// ErrWorkerStopped. It is a no-op when no worker is running and returns
// once the process has exited.
func (i *Instance) ForceStop() {
	i.stopCurrent(reasonForced)
}

func (i *Instance) stopCurrent(reason string) {
	i.mu.Lock()
	s := i.sess
	i.mu.Unlock()
	if s == nil {
		return
	}
	i.stopSession(s, reason, ErrWorkerStopped)
}

// Stop releases the instance. With force it stops the worker immediately;
// otherwise it drops all subscriptions and leaves the worker to idle
// eviction.
func (i *Instance) Stop(force bool) {
	if force {
		i.ForceStop()
		return
	}
	i.mu.Lock()
	i.subscribers = 0
	i.mu.Unlock()
}

// close stops the worker and rejects later runs.
func (i *Instance) close() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.stopCurrent(reasonClosed)
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Pending returns the number of requests awaiting a reply.
func (i *Instance) Pending() int {
	i.mu.Lock()
	s := i.sess
	i.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.pending.size()
}

// Subscribers returns the current subscriber count.
func (i *Instance) Subscribers() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subscribers
}

// PID returns the worker's process id, or 0 when none is running.
func (i *Instance) PID() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sess == nil {
		return 0
	}
	return i.sess.proc.pid
}
