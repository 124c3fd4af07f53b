package delivery

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIdleLimiters bounds the limiter table before idle entries are pruned.
const maxIdleLimiters = 4096

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

// floodGate keeps one token bucket per (chat, sender).
type floodGate struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*limiterEntry
}

func newFloodGate(perSecond float64, burst int) *floodGate {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &floodGate{limit: rate.Limit(perSecond), burst: burst, buckets: make(map[string]*limiterEntry)}
}

// allow is safe on a nil gate, which admits everything.
func (g *floodGate) allow(chatID, senderID string, now time.Time) bool {
	if g == nil {
		return true
	}
	key := chatID + "|" + senderID

	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.buckets[key]
	if !ok {
		if len(g.buckets) >= maxIdleLimiters {
			g.prune(now)
		}
		e = &limiterEntry{l: rate.NewLimiter(g.limit, g.burst)}
		g.buckets[key] = e
	}
	e.seen = now
	return e.l.AllowN(now, 1)
}

// prune drops buckets that have refilled completely.
func (g *floodGate) prune(now time.Time) {
	for k, e := range g.buckets {
		if e.l.TokensAt(now) >= float64(g.burst) {
			delete(g.buckets, k)
		}
	}
}
