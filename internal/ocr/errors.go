package ocr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("ocr: timed out waiting for worker")
	// ErrWorkerStopped is delivered to requests pending when a worker stops
	// or crashes.
	ErrWorkerStopped = errors.New("ocr: worker stopped")
	// ErrClosed is returned by Run once the owning Registry is closed.
	ErrClosed = errors.New("ocr: pool closed")
	// ErrInvalidModel rejects model names that are not a single file name.
	ErrInvalidModel = errors.New("ocr: invalid model name")
	// ErrTooManyConfigs is returned by Lookup once MaxConfigs distinct
	// configurations are registered.
	ErrTooManyConfigs = errors.New("ocr: too many distinct configurations")
)

// TimeoutError reports that no reply arrived within the run timeout.
type TimeoutError struct{ Timeout time.Duration }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ocr: no result within %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// InferenceError is a per-job failure reported by the worker. The worker
// stays up.
type InferenceError struct {
	RequestID string
	Message   string
}

func (e *InferenceError) Error() string { return "ocr: inference failed: " + e.Message }

// AssetError reports that a worker could not load its model. It ends the
// worker session and is delivered to every request pending at the time.
type AssetError struct {
	Config  InferenceConfig
	Message string
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("ocr: worker for %s failed to initialize: %s", e.Config, e.Message)
}

// IsTimeout reports whether err indicates a run timeout (maps to 504).
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsWorkerStopped reports whether err indicates the worker went away while
// the request was pending (maps to 503).
func IsWorkerStopped(err error) bool {
	return errors.Is(err, ErrWorkerStopped) || errors.Is(err, ErrClosed)
}

// IsAssetError reports whether err indicates a model that could not be
// provisioned or loaded (maps to 502).
func IsAssetError(err error) bool {
	var ae *AssetError
	return errors.As(err, &ae)
}

// IsInferenceError reports whether err is a per-job worker failure (maps to 422).
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}
