package ocr

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"embykeeper/internal/ocr/charset"
)

// Defaults applied when corresponding Options fields are unset.
const (
	DefaultIdleTimeout  = 300 * time.Second
	DefaultRunTimeout   = 60 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStopGrace    = 1 * time.Second
	DefaultMaxConfigs   = 64
)

const maxModelNameLen = 128

// InferenceConfig identifies a worker: one live process per distinct value.
// An empty Model selects the bundled default model.
type InferenceConfig struct {
	Model   string
	Charset charset.Set
}

func (c InferenceConfig) String() string {
	m := c.Model
	if m == "" {
		m = "default"
	}
	if c.Charset.IsZero() {
		return m
	}
	return fmt.Sprintf("%s[%s]", m, c.Charset)
}

// Options encapsulates all tunables for Registry construction.
type Options struct {
	// Launcher builds the worker command for a config. Required.
	Launcher Launcher
	// IdleTimeout is how long a worker with no subscribers may sit unused
	// before it is stopped.
	IdleTimeout time.Duration
	// RunTimeout is used by Run when the caller passes a non-positive timeout.
	RunTimeout time.Duration
	// PollInterval is the idle check period of the monitor.
	PollInterval time.Duration
	// StopGrace is how long a worker gets to exit after a stop request
	// before it is killed.
	StopGrace time.Duration
	// MaxConfigs bounds how many distinct configurations Lookup will
	// register.
	MaxConfigs int

	Logger    zerolog.Logger
	Publisher EventPublisher
	Metrics   *Metrics
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = DefaultRunTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.MaxConfigs <= 0 {
		o.MaxConfigs = DefaultMaxConfigs
	}
	if o.Publisher == nil {
		o.Publisher = noopPublisher{}
	}
	return o
}

// ValidateModelName accepts the empty name (bundled default) or a single
// file name without separators, dot segments or control characters. The
// name becomes part of asset paths and mirror URLs.
func ValidateModelName(name string) error {
	if name == "" {
		return nil
	}
	switch {
	case len(name) > maxModelNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidModel, maxModelNameLen)
	case name == "." || name == "..",
		strings.ContainsAny(name, `/\:`),
		filepath.Base(name) != name,
		strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidModel, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidModel, name)
		}
	}
	return nil
}
