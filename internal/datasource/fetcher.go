// Package datasource resolves named data assets (OCR models and their
// metadata) to local files, downloading missing ones from an ordered list of
// mirrors.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// DefaultMirrors are tried in order for every download.
var DefaultMirrors = []string{
	"https://raw.githubusercontent.com/emby-keeper/emby-keeper-data/main",
	"https://raw.gitmirror.com/emby-keeper/emby-keeper-data/main",
	"https://cdn.jsdelivr.net/gh/emby-keeper/emby-keeper-data",
}

const (
	defaultVersionTTL       = 10 * time.Minute
	defaultProgressInterval = 3 * time.Second
	lockRetryDelay          = 200 * time.Millisecond
)

// Options configures a Fetcher.
type Options struct {
	Mirrors []string
	// Proxy is an optional http://, https://, socks5:// or socks5h:// URL.
	Proxy string
	// Client overrides the HTTP client built from Proxy.
	Client *http.Client
	Logger zerolog.Logger
	// Caller names the component requesting assets in log messages.
	Caller           string
	VersionTTL       time.Duration
	ProgressInterval time.Duration
}

// Fetcher downloads assets on demand. It is safe for concurrent use, and a
// per-file lock keeps separate processes from downloading the same asset at
// the same time.
type Fetcher struct {
	mirrors  []string
	client   *http.Client
	log      zerolog.Logger
	caller   string
	versions *versionCache
	progress time.Duration
}

// New builds a Fetcher from opts, applying defaults.
func New(opts Options) (*Fetcher, error) {
	mirrors := opts.Mirrors
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	cleaned := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		if m = strings.TrimRight(strings.TrimSpace(m), "/"); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	client := opts.Client
	if client == nil {
		var err error
		client, err = newHTTPClient(opts.Proxy)
		if err != nil {
			return nil, err
		}
	}
	ttl := opts.VersionTTL
	if ttl <= 0 {
		ttl = defaultVersionTTL
	}
	progress := opts.ProgressInterval
	if progress <= 0 {
		progress = defaultProgressInterval
	}
	caller := opts.Caller
	if caller == "" {
		caller = "this feature"
	}
	return &Fetcher{
		mirrors:  cleaned,
		client:   client,
		log:      opts.Logger.With().Str("component", "datasource").Logger(),
		caller:   caller,
		versions: newVersionCache(ttl),
		progress: progress,
	}, nil
}

// Fetch resolves every name to a file under dir. The result has one entry per
// name, in order; an empty string marks a name that could not be resolved.
// The returned error is reserved for conditions that abort the whole call
// (unusable directory, cancelled context).
func (f *Fetcher) Fetch(ctx context.Context, dir string, names ...string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}
	var missing []string
	for _, name := range names {
		if validName(name) && isFile(filepath.Join(dir, name)) {
			f.log.Debug().Str("name", name).Msg("asset found locally")
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		f.log.Info().Str("caller", f.caller).Strs("names", missing).Msg("downloading or updating assets")
	}

	out := make([]string, len(names))
	for i, name := range names {
		p, err := f.fetchOne(ctx, dir, name)
		if err != nil {
			return out, err
		}
		out[i] = p
	}
	return out, nil
}

// Path returns the resolved path for a single name, or "" on failure.
func (f *Fetcher) Path(ctx context.Context, dir, name string) (string, error) {
	out, err := f.Fetch(ctx, dir, name)
	if err != nil || len(out) == 0 {
		return "", err
	}
	return out[0], nil
}

func (f *Fetcher) fetchOne(ctx context.Context, dir, name string) (string, error) {
	if !validName(name) {
		f.log.Warn().Str("name", name).Msg("rejecting asset name outside the assets dir")
		return "", nil
	}
	dest := filepath.Join(dir, name)
	if isFile(dest) {
		return dest, nil
	}

	lock := flock.New(dest + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Warn().Err(err).Str("name", name).Msg("asset lock unavailable, downloading without it")
	}
	if locked {
		defer lock.Unlock()
		// another process may have finished the download while we waited
		if isFile(dest) {
			return dest, nil
		}
	}

	remote := name
	versioned := false
	for {
		target := filepath.Join(dir, remote)
		if versioned && isFile(target) {
			return target, nil
		}
		status, err := f.tryMirrors(ctx, remote, target, name)
		switch {
		case err == nil:
			return target, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case (status == http.StatusForbidden || status == http.StatusNotFound) && !versioned:
			f.refreshVersions(ctx)
			v, ok := f.versions.get(name)
			if ok && !validName(v) {
				f.log.Warn().Str("name", name).Str("version", v).Msg("rejecting versioned asset name")
				return "", nil
			}
			if !ok {
				f.log.Warn().Str("name", name).Int("status", status).Msg("asset download failed")
				return "", nil
			}
			f.log.Debug().Str("name", name).Str("version", v).Msg("resolved asset version")
			remote = v
			versioned = true
		default:
			f.log.Warn().Str("name", name).Int("status", status).Err(err).Msg("asset download failed")
			return "", nil
		}
	}
}

// tryMirrors downloads remote into target from the first mirror that answers.
// Transport errors move on to the next mirror; an HTTP error status stops the
// walk and is returned for the caller to interpret.
func (f *Fetcher) tryMirrors(ctx context.Context, remote, target, label string) (int, error) {
	var lastErr error
	for _, m := range f.mirrors {
		u := m + "/data/" + remote
		f.log.Debug().Str("url", u).Msg("trying mirror")
		err := f.download(ctx, u, target, label)
		if err == nil {
			return http.StatusOK, nil
		}
		var se statusError
		if errors.As(err, &se) {
			return se.code, err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no mirrors configured")
	}
	return 0, lastErr
}

type statusError struct {
	url  string
	code int
}

func (e statusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.url, e.code) }

// download streams u into target through a temporary file so a failed
// transfer never leaves a truncated asset behind.
func (f *Fetcher) download(ctx context.Context, u, target, label string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return statusError{url: u, code: resp.StatusCode}
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	f.log.Info().Str("name", label).Str("size", humanize.Bytes(uint64(size))).Msg("download started")

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	pw := &progressWriter{
		log:   f.log,
		name:  label,
		total: uint64(size),
		every: f.progress,
		last:  time.Now(),
	}
	if _, err := io.Copy(tmp, io.TeeReader(resp.Body, pw)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download %s: %w", label, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("install %s: %w", label, err)
	}
	f.log.Info().Str("name", label).Str("size", humanize.Bytes(pw.done)).Msg("download finished")
	return nil
}

type progressWriter struct {
	log   zerolog.Logger
	name  string
	total uint64
	done  uint64
	every time.Duration
	last  time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += uint64(len(b))
	if time.Since(p.last) > p.every {
		p.last = time.Now()
		p.log.Info().
			Str("name", p.name).
			Str("done", humanize.Bytes(p.done)).
			Str("total", humanize.Bytes(p.total)).
			Msg("downloading")
	}
	return len(b), nil
}

// validName reports whether name is a single file name that stays inside
// the assets dir and is safe to append to a mirror URL.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\:?#%`) || filepath.Base(name) != name {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
