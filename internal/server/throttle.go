package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const throttleIdleEviction = 10 * time.Minute

// clientThrottle keeps a token bucket per client address. This is transport
// protection against hot polling loops; the business accept limit lives in
// the match engine.
type clientThrottle struct {
	mu      sync.Mutex
	clients map[string]*throttleEntry
	limit   rate.Limit
	burst   int
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientThrottle(rps float64, burst int) *clientThrottle {
	t := &clientThrottle{
		clients: make(map[string]*throttleEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
	go t.evictIdle()
	return t
}

func (t *clientThrottle) allow(clientKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.clients[clientKey]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[clientKey] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (t *clientThrottle) evictIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		for key, entry := range t.clients {
			if time.Since(entry.lastSeen) > throttleIdleEviction {
				delete(t.clients, key)
			}
		}
		t.mu.Unlock()
	}
}

func (t *clientThrottle) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_requests"})
			return
		}
		c.Next()
	}
}
