package ocr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"embykeeper/internal/ocr/charset"
)

func TestRegistryGetIsIdempotentPerConfig(t *testing.T) {
	r := newTestRegistry(t, "echo")
	a := r.Get(InferenceConfig{Model: "m"})
	b := r.Get(InferenceConfig{Model: "m"})
	if a != b {
		t.Fatalf("equal configs must share an instance")
	}
	c := r.Get(InferenceConfig{Model: "m", Charset: charset.FromRange(charset.Number)})
	if c == a {
		t.Fatalf("distinct charsets must get distinct instances")
	}
	d, err := r.Lookup("m", "number")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if d != c {
		t.Fatalf("Lookup by range name must match Get")
	}
	if a.PID() != 0 {
		t.Fatalf("Get must not start a worker")
	}
}

func TestRegistryLookupRejectsBlankCharset(t *testing.T) {
	r := newTestRegistry(t, "echo")
	if _, err := r.Lookup("", "   "); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRegistryCloseStopsWorkersAndRejectsRuns(t *testing.T) {
	r := newTestRegistry(t, "echo")
	a := r.Get(InferenceConfig{})
	b := r.Get(InferenceConfig{Charset: charset.FromRange(charset.Lower)})
	for _, inst := range []*Instance{a, b} {
		if err := inst.Start(testCtx(t)); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, inst := range []*Instance{a, b} {
		if inst.PID() != 0 {
			t.Fatalf("worker still running after Close")
		}
	}
	_, err := a.Run(testCtx(t), []byte("img"), time.Second)
	if !errors.Is(err, ErrClosed) || !IsWorkerStopped(err) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := r.Get(InferenceConfig{Model: "new"}).Run(testCtx(t), nil, time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("instances created after Close must be closed, got %v", err)
	}
}

func TestRegistrySnapshotIsSorted(t *testing.T) {
	r := newTestRegistry(t, "echo")
	r.Get(InferenceConfig{Model: "b"})
	r.Get(InferenceConfig{Model: "a", Charset: charset.FromRange(charset.Upper)})
	r.Get(InferenceConfig{Model: "a"})
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].Model != "a" || snap[0].Charset != "" || snap[1].Charset != "upper" || snap[2].Model != "b" {
		t.Fatalf("unexpected order: %+v", snap)
	}
	for _, st := range snap {
		if st.State != StateIdle {
			t.Fatalf("unexpected state %s", st.State)
		}
	}
}

func TestRegistryLookupRejectsUnsafeModelNames(t *testing.T) {
	r := newTestRegistry(t, "echo")
	for _, name := range []string{"../escaped", "a/b", `a\b`, "..", ".", " padded", "c:model", "x\x00y"} {
		if _, err := r.Lookup(name, ""); !errors.Is(err, ErrInvalidModel) {
			t.Fatalf("Lookup(%q): expected ErrInvalidModel, got %v", name, err)
		}
	}
	if got := len(r.Snapshot()); got != 0 {
		t.Fatalf("rejected names must not register instances, got %d", got)
	}
	for _, name := range []string{"", "captcha", "captcha-v2.1"} {
		if _, err := r.Lookup(name, ""); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}
}

func TestRegistryLookupBoundsDistinctConfigs(t *testing.T) {
	r := newTestRegistry(t, "echo", func(o *Options) { o.MaxConfigs = 3 })
	for n := 0; n < 3; n++ {
		if _, err := r.Lookup(fmt.Sprintf("m%d", n), ""); err != nil {
			t.Fatalf("Lookup m%d: %v", n, err)
		}
	}
	if _, err := r.Lookup("m3", ""); !errors.Is(err, ErrTooManyConfigs) {
		t.Fatalf("expected ErrTooManyConfigs, got %v", err)
	}
	if _, err := r.Lookup("m1", ""); err != nil {
		t.Fatalf("known configs stay reachable at the limit: %v", err)
	}
}

func TestValidateModelName(t *testing.T) {
	if err := ValidateModelName(""); err != nil {
		t.Fatalf("empty name selects the default model: %v", err)
	}
	long := make([]byte, maxModelNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateModelName(string(long)); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected length error, got %v", err)
	}
}
