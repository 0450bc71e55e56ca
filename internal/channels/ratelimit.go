package channels

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedSenders caps tracked limiters so rotating sender ids
	// cannot exhaust memory.
	maxTrackedSenders = 4096

	senderRatePerSec = 0.5 // sustained: one message every 2s
	senderBurst      = 5
)

// SenderLimiter applies a token-bucket rate limit per sender id.
// Safe for concurrent use.
type SenderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSenderLimiter() *SenderLimiter {
	return &SenderLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether the sender may proceed now.
func (l *SenderLimiter) Allow(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[senderID]
	if !ok {
		if len(l.limiters) >= maxTrackedSenders {
			for k := range l.limiters {
				delete(l.limiters, k)
				break
			}
		}
		lim = rate.NewLimiter(rate.Limit(senderRatePerSec), senderBurst)
		l.limiters[senderID] = lim
	}
	return lim.Allow()
}
