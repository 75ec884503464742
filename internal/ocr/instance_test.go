package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

func TestRunEchoServesConcurrentCallers(t *testing.T) {
	pub := NewMemoryPublisher()
	r := newTestRegistry(t, "echo", func(o *Options) { o.Publisher = pub })
	inst := r.Get(InferenceConfig{})

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = inst.Run(testCtx(t), []byte("img"), time.Second)
		}(n)
	}
	wg.Wait()
	for n := range results {
		if errs[n] != nil || results[n] != "12345" {
			t.Fatalf("caller %d: got %q, %v", n, results[n], errs[n])
		}
	}
	if inst.Pending() != 0 {
		t.Fatalf("expected empty pending table, got %d", inst.Pending())
	}
	if inst.State() != StateRunning || inst.PID() == 0 {
		t.Fatalf("expected running worker, state=%s pid=%d", inst.State(), inst.PID())
	}
	if n := pub.Count(EventWorkerStart); n != 1 {
		t.Fatalf("expected exactly one worker start, got %d", n)
	}
}

func TestRunConcurrentCallersGetTheirOwnResult(t *testing.T) {
	r := newTestRegistry(t, "echo-image")
	inst := r.Get(InferenceConfig{})

	const n = 20
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			want := fmt.Sprintf("job-%d", k)
			got, err := inst.Run(testCtx(t), []byte(want), 2*time.Second)
			if err != nil {
				errCh <- err
				return
			}
			if got != want {
				errCh <- fmt.Errorf("caller %d got %q", k, got)
			}
		}(k)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("run: %v", err)
	}
	if inst.Pending() != 0 {
		t.Fatalf("leaked %d pending entries", inst.Pending())
	}
}

func TestRunTimeoutLeavesNoPendingEntry(t *testing.T) {
	r := newTestRegistry(t, "hang")
	inst := r.Get(InferenceConfig{})

	_, err := inst.Run(testCtx(t), []byte("img"), 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) || !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != 100*time.Millisecond {
		t.Fatalf("expected *TimeoutError with duration, got %#v", err)
	}
	if inst.Pending() != 0 {
		t.Fatalf("leaked %d pending entries", inst.Pending())
	}
	if inst.State() != StateRunning {
		t.Fatalf("timeout must not stop the worker, state=%s", inst.State())
	}
}

// stuckImage overflows the stdin pipe buffer of a worker that never reads.
var stuckImage = make([]byte, 1<<20)

func TestRunTimeoutWhileWorkerNotReading(t *testing.T) {
	r := newTestRegistry(t, "stuck")
	inst := r.Get(InferenceConfig{})

	type result struct {
		err     error
		elapsed time.Duration
	}
	results := make(chan result, 2)
	for n := 0; n < 2; n++ {
		go func() {
			start := time.Now()
			_, err := inst.Run(context.Background(), stuckImage, 300*time.Millisecond)
			results <- result{err: err, elapsed: time.Since(start)}
		}()
	}
	for n := 0; n < 2; n++ {
		select {
		case res := <-results:
			if !IsTimeout(res.err) {
				t.Fatalf("expected timeout, got %v", res.err)
			}
			if res.elapsed > 2*time.Second {
				t.Fatalf("timeout took %s", res.elapsed)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("Run ignored its timeout while the worker was not reading")
		}
	}
	if inst.Pending() != 0 {
		t.Fatalf("leaked %d pending entries", inst.Pending())
	}

	done := make(chan struct{})
	go func() {
		inst.ForceStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("ForceStop hung on a blocked job write")
	}
}

func TestRunCancellationWhileWorkerNotReading(t *testing.T) {
	r := newTestRegistry(t, "stuck")
	inst := r.Get(InferenceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := inst.Run(ctx, stuckImage, time.Minute)
		errc <- err
	}()
	select {
	case err := <-errc:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context deadline, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run ignored cancellation while the worker was not reading")
	}
}

func TestRunCancellationRemovesPendingEntry(t *testing.T) {
	r := newTestRegistry(t, "hang")
	inst := r.Get(InferenceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for inst.Pending() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()
	_, err := inst.Run(ctx, []byte("img"), 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inst.Pending() != 0 {
		t.Fatalf("leaked %d pending entries", inst.Pending())
	}
}

func TestCrashFailsAllPendingRequests(t *testing.T) {
	pub := NewMemoryPublisher()
	r := newTestRegistry(t, "hang", func(o *Options) { o.Publisher = pub })
	inst := r.Get(InferenceConfig{})

	const n = 5
	errCh := make(chan error, n)
	for k := 0; k < n; k++ {
		go func() {
			_, err := inst.Run(context.Background(), []byte("img"), 10*time.Second)
			errCh <- err
		}()
	}
	waitFor(t, 3*time.Second, "all requests pending", func() bool { return inst.Pending() == n })
	pid := inst.PID()
	p, err := os.FindProcess(pid)
	if err != nil {
		t.Fatalf("find process: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("kill worker: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for k := 0; k < n; k++ {
		select {
		case err := <-errCh:
			if !IsWorkerStopped(err) {
				t.Fatalf("expected worker stopped error, got %v", err)
			}
		case <-deadline:
			t.Fatalf("only %d of %d pending requests failed", k, n)
		}
	}
	waitFor(t, 2*time.Second, "crashed state", func() bool { return inst.State() == StateCrashed })
	if inst.PID() != 0 || inst.Pending() != 0 {
		t.Fatalf("expected no process and no pending after crash, pid=%d pending=%d", inst.PID(), inst.Pending())
	}
	if pub.Count(EventWorkerCrash) != 1 {
		t.Fatalf("expected one crash event, got %+v", pub.Events())
	}

	if err := inst.Start(testCtx(t)); err != nil {
		t.Fatalf("restart after crash: %v", err)
	}
	if got := inst.PID(); got == 0 || got == pid {
		t.Fatalf("expected a fresh worker after crash, pid=%d old=%d", got, pid)
	}
}

func TestIdleWorkerIsEvicted(t *testing.T) {
	pub := NewMemoryPublisher()
	r := newTestRegistry(t, "echo", func(o *Options) {
		o.IdleTimeout = 150 * time.Millisecond
		o.Publisher = pub
	})
	inst := r.Get(InferenceConfig{})
	if _, err := inst.Run(testCtx(t), []byte("img"), time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitFor(t, 3*time.Second, "idle eviction", func() bool { return inst.PID() == 0 })
	if inst.State() != StateIdle {
		t.Fatalf("expected idle state after eviction, got %s", inst.State())
	}
	var sawIdle bool
	for _, e := range pub.Events() {
		if e.Name == EventWorkerStop && e.Fields["reason"] == reasonIdle {
			sawIdle = true
		}
	}
	if !sawIdle {
		t.Fatalf("expected idle stop event, got %+v", pub.Events())
	}
}

func TestSubscriptionHoldsWorkerAlive(t *testing.T) {
	r := newTestRegistry(t, "echo", func(o *Options) { o.IdleTimeout = 100 * time.Millisecond })
	inst := r.Get(InferenceConfig{})

	sub := inst.Subscribe()
	defer sub.Release()
	if inst.PID() != 0 {
		t.Fatalf("Subscribe must not start a worker")
	}
	if _, err := inst.Run(testCtx(t), []byte("img"), time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	pid := inst.PID()
	time.Sleep(400 * time.Millisecond)
	if inst.PID() != pid {
		t.Fatalf("subscribed worker was evicted")
	}

	sub.Release()
	sub.Release()
	if got := inst.Subscribers(); got != 0 {
		t.Fatalf("expected 0 subscribers after double release, got %d", got)
	}
	waitFor(t, 3*time.Second, "eviction after release", func() bool { return inst.PID() == 0 })
}

func TestUnsubscribeWithoutSubscriptionRefreshesActivity(t *testing.T) {
	r := newTestRegistry(t, "echo")
	inst := r.Get(InferenceConfig{})
	before := inst.Status().LastActive
	time.Sleep(10 * time.Millisecond)
	inst.Unsubscribe()
	if inst.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", inst.Subscribers())
	}
	if !inst.Status().LastActive.After(before) {
		t.Fatalf("unsubscribe must refresh last activity")
	}
}

func TestUnsubscribeNeverGoesNegative(t *testing.T) {
	r := newTestRegistry(t, "echo")
	inst := r.Get(InferenceConfig{})
	inst.Unsubscribe()
	if got := inst.Subscribers(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	inst.Subscribe()
	inst.Subscribe()
	inst.Stop(false)
	if got := inst.Subscribers(); got != 0 {
		t.Fatalf("Stop(false) should zero subscribers, got %d", got)
	}
}

func TestForceStopIsIdempotent(t *testing.T) {
	pub := NewMemoryPublisher()
	r := newTestRegistry(t, "echo", func(o *Options) { o.Publisher = pub })
	inst := r.Get(InferenceConfig{})

	inst.ForceStop()
	if len(pub.Events()) != 0 {
		t.Fatalf("stop on idle instance must be a no-op, got %+v", pub.Events())
	}
	if err := inst.Start(testCtx(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	inst.ForceStop()
	inst.Stop(true)
	if inst.State() != StateIdle || inst.PID() != 0 {
		t.Fatalf("expected idle without process, state=%s pid=%d", inst.State(), inst.PID())
	}
	if n := pub.Count(EventWorkerStop); n != 1 {
		t.Fatalf("expected one stop event, got %d", n)
	}
}

func TestForceStopFailsPendingRequests(t *testing.T) {
	r := newTestRegistry(t, "hang")
	inst := r.Get(InferenceConfig{})
	errCh := make(chan error, 1)
	go func() {
		_, err := inst.Run(context.Background(), []byte("img"), 10*time.Second)
		errCh <- err
	}()
	waitFor(t, 3*time.Second, "pending request", func() bool { return inst.Pending() == 1 })
	inst.ForceStop()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrWorkerStopped) {
			t.Fatalf("expected ErrWorkerStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending request not failed by stop")
	}
}

func TestStopKillsWorkerIgnoringStop(t *testing.T) {
	r := newTestRegistry(t, "deaf", func(o *Options) { o.StopGrace = 100 * time.Millisecond })
	inst := r.Get(InferenceConfig{})
	if err := inst.Start(testCtx(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		inst.ForceStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("ForceStop did not kill an unresponsive worker")
	}
	if inst.State() != StateIdle {
		t.Fatalf("expected idle, got %s", inst.State())
	}
}

func TestFatalReplyBecomesAssetError(t *testing.T) {
	pub := NewMemoryPublisher()
	r := newTestRegistry(t, "fatal", func(o *Options) { o.Publisher = pub })
	inst := r.Get(InferenceConfig{Model: "missing"})

	_, err := inst.Run(testCtx(t), []byte("img"), 2*time.Second)
	if !IsAssetError(err) {
		t.Fatalf("expected asset error, got %v", err)
	}
	var ae *AssetError
	if !errors.As(err, &ae) || ae.Config.Model != "missing" {
		t.Fatalf("asset error should carry the config, got %#v", err)
	}
	waitFor(t, 2*time.Second, "crashed state", func() bool { return inst.State() == StateCrashed })
	if st := inst.Status(); st.LastError == "" {
		t.Fatalf("expected last error in status")
	}
	if pub.Count(EventWorkerFatal) != 1 {
		t.Fatalf("expected fatal event, got %+v", pub.Events())
	}
}

func TestFailureReplyKeepsWorkerRunning(t *testing.T) {
	r := newTestRegistry(t, "fail")
	inst := r.Get(InferenceConfig{})
	_, err := inst.Run(testCtx(t), []byte("img"), time.Second)
	if !IsInferenceError(err) {
		t.Fatalf("expected inference error, got %v", err)
	}
	pid := inst.PID()
	if _, err := inst.Run(testCtx(t), []byte("img"), time.Second); !IsInferenceError(err) {
		t.Fatalf("expected inference error, got %v", err)
	}
	if inst.PID() != pid {
		t.Fatalf("worker restarted after per-job failure")
	}
}

func TestStartFailureIsReported(t *testing.T) {
	r := NewRegistry(Options{Launcher: ExecLauncher{Path: "/nonexistent/embykeeper-worker"}})
	inst := r.Get(InferenceConfig{})
	if _, err := inst.Run(testCtx(t), []byte("img"), time.Second); err == nil {
		t.Fatalf("expected start error")
	}
	if inst.State() != StateIdle || inst.Status().LastError == "" {
		t.Fatalf("unexpected status after failed start: %+v", inst.Status())
	}
}
