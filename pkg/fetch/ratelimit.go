package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// hostClock tracks a single host's last request time. Its mutex is held
// across the whole check-wait-record sequence so two tasks can never both
// compute a wait from a stale timestamp and fire together.
type hostClock struct {
	mu   sync.Mutex
	last time.Time
}

// RateLimiter enforces a minimum interval between request start times per
// host. Unrelated hosts are never serialized against each other: each host
// has its own exclusive critical section.
type RateLimiter struct {
	hosts        map[string]*hostClock
	mu           sync.Mutex // protects the hosts map only
	defaultDelay time.Duration
	log          *logrus.Entry
}

// NewRateLimiter creates a RateLimiter with the given default per-host delay.
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		hosts:        make(map[string]*hostClock),
		defaultDelay: defaultDelay,
		log:          log,
	}
}

// entry gets or lazily creates the clock for host.
func (rl *RateLimiter) entry(host string) *hostClock {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	hc, exists := rl.hosts[host]
	if !exists {
		hc = &hostClock{}
		rl.hosts[host] = hc
	}
	return hc
}

// WaitForSlot blocks until the host's rate-limit slot is available, then
// records the new last-access timestamp. The effective interval is the
// larger of the configured default and minDelay (a robots crawl-delay).
// Returns early with ctx.Err() if the context is cancelled while waiting.
func (rl *RateLimiter) WaitForSlot(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay < rl.defaultDelay {
		minDelay = rl.defaultDelay
	}

	hc := rl.entry(host)
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if !hc.last.IsZero() && minDelay > 0 {
		elapsed := time.Since(hc.last)
		if elapsed < minDelay {
			wait := minDelay - elapsed
			rl.log.WithFields(logrus.Fields{
				"host": host, "sleep": wait, "required_delay": minDelay, "elapsed": elapsed,
			}).Debug("Rate limit applying sleep")
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	hc.last = time.Now()
	return nil
}

// Len returns the number of hosts currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.hosts)
}
