// Package worker is the OCR worker harness. It runs inside a dedicated child
// process: it loads one engine, then serves classification jobs read from the
// parent over stdin and writes replies to stdout until told to stop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"embykeeper/internal/ocr/charset"
	"embykeeper/internal/ocr/protocol"
)

// ErrAssetsUnavailable reports that a named model's files could not be
// resolved locally or downloaded.
var ErrAssetsUnavailable = errors.New("unable to download required assets")

// AssetFetcher resolves asset names to local paths. An empty path marks a
// name that could not be resolved.
type AssetFetcher interface {
	Fetch(ctx context.Context, dir string, names ...string) ([]string, error)
}

// Options configures a harness run.
type Options struct {
	// Model is the named model to load; empty selects the bundled default.
	Model     string
	Charset   charset.Set
	AssetsDir string
	Fetcher   AssetFetcher
	Loader    Loader
	Logger    zerolog.Logger
}

// AssetNames lists the files a named model is made of: the model itself and
// its JSON metadata.
func AssetNames(model string) []string {
	return []string{model + ".traineddata", model + ".json"}
}

type harness struct {
	opts   Options
	log    zerolog.Logger
	engine Engine
}

// Run loads the engine and serves commands from in, writing replies to out.
// It returns nil after a Stop command or when in is closed. If the engine
// cannot be loaded a Fatal reply is written and the load error returned.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	enc := protocol.NewEncoder(out)
	h := &harness{opts: opts, log: opts.Logger}

	eng, err := h.load(ctx)
	if err != nil {
		h.log.Error().Err(err).Str("model", opts.Model).Msg("worker init failed")
		if werr := enc.WriteReply(protocol.Fatal{Message: err.Error()}); werr != nil {
			h.log.Error().Err(werr).Msg("report init failure")
		}
		return err
	}
	h.engine = eng
	defer func() {
		if err := eng.Close(); err != nil {
			h.log.Warn().Err(err).Msg("close engine")
		}
	}()
	h.log.Info().Str("model", modelLabel(opts.Model)).Str("charset", opts.Charset.String()).Msg("worker ready")

	dec := protocol.NewDecoder(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := dec.ReadCommand()
		if err != nil {
			if errors.Is(err, protocol.ErrUnexpectedMessage) {
				h.log.Warn().Err(err).Msg("ignoring message")
				continue
			}
			if err == io.EOF {
				h.log.Debug().Msg("input closed")
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		switch c := cmd.(type) {
		case protocol.Stop:
			h.log.Debug().Msg("stop received")
			return nil
		case protocol.Process:
			if err := enc.WriteReply(h.process(c)); err != nil {
				return err
			}
		default:
			h.log.Warn().Str("type", fmt.Sprintf("%T", cmd)).Msg("ignoring command")
		}
	}
}

func (h *harness) load(ctx context.Context) (Engine, error) {
	if h.opts.Loader == nil {
		return nil, errors.New("no engine loader configured")
	}
	if strings.TrimSpace(h.opts.Model) == "" {
		return h.opts.Loader.LoadDefault(h.opts.Charset)
	}
	if h.opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: no asset fetcher configured", ErrAssetsUnavailable)
	}
	names := AssetNames(h.opts.Model)
	paths, err := h.opts.Fetcher.Fetch(ctx, h.opts.AssetsDir, names...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetsUnavailable, err)
	}
	if len(paths) != len(names) {
		return nil, fmt.Errorf("%w: fetcher returned %d paths for %d names", ErrAssetsUnavailable, len(paths), len(names))
	}
	for i, p := range paths {
		if p == "" {
			return nil, fmt.Errorf("%w: %s", ErrAssetsUnavailable, names[i])
		}
	}
	eng, err := h.opts.Loader.LoadNamed(paths[0], paths[1], h.opts.Charset)
	if err != nil {
		return nil, fmt.Errorf("load model %s (assets may be incomplete): %w", h.opts.Model, err)
	}
	return eng, nil
}

// process turns one job into exactly one reply. Nothing a single job does
// may end the command loop.
func (h *harness) process(job protocol.Process) (reply protocol.Reply) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("request_id", job.RequestID).Msg("classification panicked")
			reply = protocol.Failure{RequestID: job.RequestID, Message: fmt.Sprintf("classification panicked: %v", r)}
		}
	}()
	img, err := decodeImage(job.Image)
	if err != nil {
		return protocol.Failure{RequestID: job.RequestID, Message: err.Error()}
	}
	text, err := h.classify(img)
	if err != nil {
		return protocol.Failure{RequestID: job.RequestID, Message: err.Error()}
	}
	return protocol.Success{RequestID: job.RequestID, Text: text}
}

func (h *harness) classify(img image.Image) (string, error) {
	set := h.opts.Charset
	if set.IsZero() {
		return h.engine.Classify(img)
	}
	if pe, ok := h.engine.(ProbabilityEngine); ok {
		p, err := pe.Probability(img)
		if err != nil {
			return "", err
		}
		return p.Best(set), nil
	}
	text, err := h.engine.Classify(img)
	if err != nil {
		return "", err
	}
	return set.Filter(text), nil
}

func modelLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
