package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"openrouter-gateway/pkg/cache"
)

// Result of a duplicate check. Detection is advisory-only: the gateway logs
// duplicates but never rejects them, since rapid identical retries from an
// IDE client are legitimate traffic.
type Result struct {
	Duplicate    bool
	FirstSeenAgo time.Duration
}

// Detector fingerprints (body, origin) pairs and flags repeats arriving
// within the configured window. Safe for concurrent use.
type Detector struct {
	window  time.Duration
	now     func() time.Time
	entries *cache.TTLMap[string, time.Time]

	checked    atomic.Int64
	duplicates atomic.Int64
}

// New creates a detector. now is injectable for tests; nil means time.Now.
func New(window time.Duration, now func() time.Time) *Detector {
	if window <= 0 {
		window = 5 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{
		window:  window,
		now:     now,
		entries: cache.NewTTLMap[string, time.Time](),
	}
}

// CheckAndRecord looks up the fingerprint of body+origin. A hit within the
// window reports a duplicate with the elapsed time since first sight; a miss
// records the pair. The first-seen timestamp is not refreshed on a hit, so a
// burst of repeats expires together with its first occurrence.
func (d *Detector) CheckAndRecord(body, origin string) Result {
	now := d.now()
	key := Fingerprint(body, origin)
	d.checked.Add(1)
	if firstSeen, ok := d.entries.GetFresh(key, now); ok {
		d.duplicates.Add(1)
		return Result{Duplicate: true, FirstSeenAgo: now.Sub(firstSeen)}
	}
	d.entries.Set(key, now, now, d.window)
	return Result{}
}

// EvictExpired drops entries older than the window to bound memory.
func (d *Detector) EvictExpired() int {
	return d.entries.EvictExpired(d.now())
}

// Window returns the configured duplicate-detection window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Stats reports how many requests were checked and how many were duplicates.
func (d *Detector) Stats() (checked, duplicates int64) {
	return d.checked.Load(), d.duplicates.Load()
}

// Fingerprint derives the shared-map key from request content and origin.
func Fingerprint(body, origin string) string {
	h := sha256.New()
	h.Write([]byte(body))
	h.Write([]byte{'|'})
	h.Write([]byte(origin))
	return hex.EncodeToString(h.Sum(nil))
}
