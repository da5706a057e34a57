package cache

import (
	"testing"
	"time"

	"github.com/colmena-dev/colmena/internal/provider"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache(max int, ttl time.Duration) (*ResponseCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(max, ttl, clock.Now), clock
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("context", "prompt")
	b := Fingerprint("context", "prompt")
	if a != b {
		t.Errorf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
	if Fingerprint("context", "prompt") == Fingerprint("contextp", "rompt") {
		t.Error("boundary shift between context and prompt must change the fingerprint")
	}
}

func TestGetPut_RoundTrip(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	if _, ok := c.Get("fp"); ok {
		t.Fatal("Get on empty cache = hit, want miss")
	}
	c.Put("fp", provider.Reply{Provider: "deepseek", Text: "hello"})

	got, ok := c.Get("fp")
	if !ok {
		t.Fatal("Get after Put = miss, want hit")
	}
	if got.Text != "hello" {
		t.Errorf("Get().Text = %q, want %q", got.Text, "hello")
	}
}

func TestGet_TTLExpiryIsMiss(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Put("fp", provider.Reply{Text: "stale"})

	clock.now = clock.now.Add(61 * time.Second)
	if _, ok := c.Get("fp"); ok {
		t.Error("Get past TTL = hit, want miss")
	}

	// Expired entry is purged, not just hidden.
	if got := c.Stats().Size; got != 0 {
		t.Errorf("Size after expired read = %d, want 0", got)
	}
}

func TestPut_FIFOEviction(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	c.Put("a", provider.Reply{Text: "a"})
	c.Put("b", provider.Reply{Text: "b"})
	c.Put("c", provider.Reply{Text: "c"})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry survived eviction, want it dropped")
	}
	for _, fp := range []string{"b", "c"} {
		if _, ok := c.Get(fp); !ok {
			t.Errorf("entry %q was evicted, want it kept", fp)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestPut_RefreshExistingDoesNotEvict(t *testing.T) {
	c, clock := newTestCache(2, time.Minute)
	c.Put("a", provider.Reply{Text: "a1"})
	c.Put("b", provider.Reply{Text: "b"})

	clock.now = clock.now.Add(30 * time.Second)
	c.Put("a", provider.Reply{Text: "a2"})

	got, ok := c.Get("a")
	if !ok || got.Text != "a2" {
		t.Fatalf("Get(a) = %+v/%v, want refreshed a2", got, ok)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("refresh of existing key evicted another entry")
	}

	// The refresh also reset the entry's age.
	clock.now = clock.now.Add(45 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("refreshed entry expired on the original insert's clock")
	}
}

func TestStats_Counters(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Put("x", provider.Reply{})
	c.Get("x")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, size 1", s)
	}
}
