package datasource

import (
	"strings"
	"testing"
	"time"
)

func TestVersionCacheExpires(t *testing.T) {
	c := newVersionCache(20 * time.Millisecond)
	c.put("m.json", "m-v2.json")
	if v, ok := c.get("m.json"); !ok || v != "m-v2.json" {
		t.Fatalf("get = %q, %v", v, ok)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.get("m.json"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestParseVersionsSkipsMalformedLines(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:1")
	n := f.parseVersions(strings.NewReader("a = a-v1\n\nbroken\n = x\nb=b-v3\n"))
	if n != 2 {
		t.Fatalf("parsed %d entries, want 2", n)
	}
	if v, ok := f.versions.get("b"); !ok || v != "b-v3" {
		t.Fatalf("b = %q, %v", v, ok)
	}
}
