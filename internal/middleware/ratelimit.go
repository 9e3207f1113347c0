package middleware

import (
	"container/list"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	ip      string
	limiter *rate.Limiter
}

// RateLimiter keeps one token bucket per client IP. The least recently seen
// IPs are evicted once maxEntries is reached.
type RateLimiter struct {
	limiters   map[string]*list.Element
	lru        *list.List
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	maxEntries int
	log        *logrus.Logger
}

// NewRateLimiter creates a per-IP limiter tracking at most 10000 addresses
func NewRateLimiter(requestsPerSecond float64, burst int, log *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*list.Element),
		lru:        list.New(),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: 10000,
		log:        log,
	}
}

// Allow reports whether a request from ip may proceed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[ip]; ok {
		rl.lru.MoveToFront(elem)
		return elem.Value.(*limiterEntry).limiter.Allow()
	}

	if rl.maxEntries > 0 && rl.lru.Len() >= rl.maxEntries {
		if oldest := rl.lru.Back(); oldest != nil {
			delete(rl.limiters, oldest.Value.(*limiterEntry).ip)
			rl.lru.Remove(oldest)
		}
	}

	entry := &limiterEntry{ip: ip, limiter: rate.NewLimiter(rl.rate, rl.burst)}
	rl.limiters[ip] = rl.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Middleware answers 429 once an IP exceeds its budget
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.log.Warnf("🚦 Rate limit exceeded for %s", ip)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
