package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window per-client-IP limiter, intended for the auth
// endpoints where credential stuffing is the concern. Windows live in memory
// and reset on restart.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*rateWindow
	now     func() time.Time
}

// NewRateLimiter allows limit requests per client per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Handler wraps next with the limit. A zero or negative limit disables
// limiting.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	if l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.clients[ip]
	if !ok || now.After(win.resetAt) {
		// Expired windows from other clients are swept opportunistically to
		// bound memory on long-running processes.
		for key, other := range l.clients {
			if now.After(other.resetAt) {
				delete(l.clients, key)
			}
		}
		l.clients[ip] = &rateWindow{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if win.count >= l.limit {
		return false
	}
	win.count++
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
