package datasource

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// versionCache maps asset names to their versioned file names as published in
// each mirror's "version" file.
type versionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]versionEntry
	// refresh serialises version-file downloads
	refresh sync.Mutex
}

type versionEntry struct {
	value   string
	expires time.Time
}

func newVersionCache(ttl time.Duration) *versionCache {
	return &versionCache{ttl: ttl, entries: make(map[string]versionEntry)}
}

func (c *versionCache) get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, name)
		return "", false
	}
	return e.value, true
}

func (c *versionCache) put(name, value string) {
	c.mu.Lock()
	c.entries[name] = versionEntry{value: value, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// refreshVersions loads "<mirror>/version" from the first reachable mirror.
// Lines have the form "name = versioned-name"; blank lines are skipped.
func (f *Fetcher) refreshVersions(ctx context.Context) bool {
	f.versions.refresh.Lock()
	defer f.versions.refresh.Unlock()
	for _, m := range f.mirrors {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m+"/version", nil)
		if err != nil {
			return false
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			f.log.Warn().Int("status", resp.StatusCode).Msg("asset version lookup failed")
			return false
		}
		n := f.parseVersions(resp.Body)
		resp.Body.Close()
		f.log.Debug().Int("entries", n).Str("mirror", m).Msg("asset versions refreshed")
		return true
	}
	f.log.Warn().Msg("asset version lookup failed on every mirror")
	return false
}

func (f *Fetcher) parseVersions(r io.Reader) int {
	n := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		f.versions.put(k, v)
		n++
	}
	return n
}
