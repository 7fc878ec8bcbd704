package services

import (
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"golang.org/x/time/rate"
)

// OTPThrottle limits how often a one-time code can be sent to one target.
// Each (channel, target) pair gets its own token bucket.
type OTPThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	every    time.Duration
	burst    int
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewOTPThrottle allows burst sends, then one per interval. A zero interval disables throttling.
func NewOTPThrottle(interval time.Duration, burst int) *OTPThrottle {
	if burst < 1 {
		burst = 1
	}
	return &OTPThrottle{
		limiters: make(map[string]*throttleEntry),
		every:    interval,
		burst:    burst,
	}
}

// Allow reports whether a code may be sent to target at now
func (t *OTPThrottle) Allow(channel models.Channel, target string, now time.Time) bool {
	if t == nil || t.every <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := models.OTPKey(channel, target)
	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle since before cutoff and returns how many were removed
func (t *OTPThrottle) Sweep(cutoff time.Time) int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
			removed++
		}
	}
	return removed
}
