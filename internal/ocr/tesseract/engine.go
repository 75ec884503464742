//go:build tesseract

package tesseract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"embykeeper/internal/ocr/charset"
	"embykeeper/internal/ocr/worker"
)

// Available reports whether this binary was built with Tesseract support.
const Available = true

// Loader builds Tesseract-backed engines. The bundled default model is the
// system "eng" language; named models are <name>.traineddata files with a
// JSON metadata sidecar.
type Loader struct {
	DefaultLanguage string
}

// LoadDefault implements worker.Loader.
func (l Loader) LoadDefault(set charset.Set) (worker.Engine, error) {
	lang := l.DefaultLanguage
	if lang == "" {
		lang = "eng"
	}
	return newEngine("", lang, set, gosseract.PSM_SINGLE_LINE)
}

// LoadNamed implements worker.Loader.
func (l Loader) LoadNamed(modelPath, metaPath string, set charset.Set) (worker.Engine, error) {
	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("model file %s is empty", modelPath)
	}
	if set.IsZero() && meta.Charset != "" {
		set = charset.Custom(meta.Charset)
	}
	psm := gosseract.PSM_SINGLE_LINE
	if meta.PageSegMode > 0 {
		psm = gosseract.PageSegMode(meta.PageSegMode)
	}
	lang := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	return newEngine(filepath.Dir(modelPath), lang, set, psm)
}

// Meta is the JSON sidecar shipped with a named model.
type Meta struct {
	Charset     string `json:"charset"`
	PageSegMode int    `json:"psm"`
}

func readMeta(p string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(p)
	if err != nil {
		return m, fmt.Errorf("read model metadata: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse model metadata: %w", err)
	}
	return m, nil
}

// Engine wraps one gosseract client. The worker harness calls it serially,
// so the client is reused across jobs.
type Engine struct {
	client *gosseract.Client
}

func newEngine(prefix, lang string, set charset.Set, psm gosseract.PageSegMode) (*Engine, error) {
	c := gosseract.NewClient()
	fail := func(what string, err error) (*Engine, error) {
		_ = c.Close()
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if prefix != "" {
		if err := c.SetTessdataPrefix(prefix); err != nil {
			return fail("set tessdata prefix", err)
		}
	}
	if err := c.SetLanguage(lang); err != nil {
		return fail("set language", err)
	}
	if err := c.SetPageSegMode(psm); err != nil {
		return fail("set page segmentation mode", err)
	}
	if wl := set.Whitelist(); wl != "" {
		if err := c.SetWhitelist(wl); err != nil {
			return fail("set whitelist", err)
		}
	}
	if bl := set.Blacklist(); bl != "" {
		if err := c.SetBlacklist(bl); err != nil {
			return fail("set blacklist", err)
		}
	}
	return &Engine{client: c}, nil
}

// Classify implements worker.Engine. Whitespace is dropped: captchas are a
// single token.
func (e *Engine) Classify(img image.Image) (string, error) {
	if err := e.setImage(img); err != nil {
		return "", err
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.Join(strings.Fields(text), ""), nil
}

// Probability implements worker.ProbabilityEngine. Tesseract only reports the
// winning symbol per position, so each row holds that symbol's confidence.
func (e *Engine) Probability(img image.Image) (worker.Probability, error) {
	if err := e.setImage(img); err != nil {
		return worker.Probability{}, err
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return worker.Probability{}, fmt.Errorf("symbol boxes: %w", err)
	}
	var p worker.Probability
	index := make(map[string]int)
	for _, b := range boxes {
		sym := strings.TrimSpace(b.Word)
		if sym == "" {
			continue
		}
		if _, ok := index[sym]; !ok {
			index[sym] = len(p.Charsets)
			p.Charsets = append(p.Charsets, sym)
		}
	}
	for _, b := range boxes {
		sym := strings.TrimSpace(b.Word)
		if sym == "" {
			continue
		}
		row := make([]float32, len(p.Charsets))
		row[index[sym]] = float32(b.Confidence / 100.0)
		p.Rows = append(p.Rows, row)
	}
	return p, nil
}

func (e *Engine) setImage(img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

// Close implements worker.Engine.
func (e *Engine) Close() error { return e.client.Close() }
