package ocr

import (
	"fmt"
	"sort"
	"sync"

	"embykeeper/internal/ocr/charset"
)

// Registry hands out one Instance per InferenceConfig. It is an explicit
// dependency: construct one and pass it to whatever needs OCR.
type Registry struct {
	opts Options

	mu        sync.Mutex
	instances map[InferenceConfig]*Instance
	closed    bool
}

// NewRegistry constructs a Registry from Options, applying defaults.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:      opts.withDefaults(),
		instances: make(map[InferenceConfig]*Instance),
	}
}

// Get returns the Instance for cfg, creating it on first use. Equal configs
// always yield the same Instance. No worker is started.
func (r *Registry) Get(cfg InferenceConfig) *Instance {
	inst, _ := r.get(cfg, 0)
	return inst
}

// get returns or creates the Instance for cfg. A positive limit refuses to
// create one once that many configurations exist.
func (r *Registry) get(cfg InferenceConfig, limit int) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[cfg]; ok {
		return inst, nil
	}
	if limit > 0 && len(r.instances) >= limit {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyConfigs, limit)
	}
	inst := newInstance(cfg, r.opts)
	if r.closed {
		inst.closed = true
	}
	r.instances[cfg] = inst
	return inst, nil
}

// Lookup validates model, parses a charset spec (range name or literal
// alphabet, empty for none) and returns the Instance for that pair. Unlike
// Get it refuses new configurations beyond Options.MaxConfigs, so it is the
// entry point for untrusted input.
func (r *Registry) Lookup(model, charsetSpec string) (*Instance, error) {
	if err := ValidateModelName(model); err != nil {
		return nil, err
	}
	var set charset.Set
	if charsetSpec != "" {
		var err error
		set, err = charset.Parse(charsetSpec)
		if err != nil {
			return nil, fmt.Errorf("parse charset: %w", err)
		}
	}
	return r.get(InferenceConfig{Model: model, Charset: set}, r.opts.MaxConfigs)
}

// Close stops every worker and makes later runs fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	insts := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		insts = append(insts, inst)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range insts {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			inst.close()
		}(inst)
	}
	wg.Wait()
	return nil
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Snapshot returns the status of every known instance, ordered by model and
// charset.
func (r *Registry) Snapshot() []InstanceStatus {
	r.mu.Lock()
	insts := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		insts = append(insts, inst)
	}
	r.mu.Unlock()

	out := make([]InstanceStatus, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Status())
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Model != out[b].Model {
			return out[a].Model < out[b].Model
		}
		return out[a].Charset < out[b].Charset
	})
	return out
}
