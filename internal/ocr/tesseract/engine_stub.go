//go:build !tesseract

package tesseract

// This file provides a no-CGO stub for the Tesseract engine. It is compiled
// when the 'tesseract' build tag is NOT set, keeping default builds CGO-free.
// The real engine lives in engine.go (tagged 'tesseract').

import (
	"errors"

	"embykeeper/internal/ocr/charset"
	"embykeeper/internal/ocr/worker"
)

// Available reports whether this binary was built with Tesseract support.
const Available = false

// ErrUnavailable is returned by every load in builds without Tesseract.
var ErrUnavailable = errors.New("tesseract support not built (missing 'tesseract' build tag)")

// Loader refuses to build engines without the 'tesseract' build tag.
type Loader struct {
	DefaultLanguage string
}

func (Loader) LoadDefault(charset.Set) (worker.Engine, error) { return nil, ErrUnavailable }

func (Loader) LoadNamed(string, string, charset.Set) (worker.Engine, error) {
	return nil, ErrUnavailable
}
