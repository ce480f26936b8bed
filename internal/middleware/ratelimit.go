package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type peerKey struct{}

// PeerAddr records the address of the TCP peer before anything rewrites
// RemoteAddr. Mount it ahead of chi's RealIP: forwarding headers are chosen
// by the client and must not pick the rate-limit bucket.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoginLimiter throttles sign-in attempts per client IP with a token bucket
// (golang.org/x/time/rate): `perMinute` attempts refill evenly over a
// minute and up to `perMinute` may be spent at once.
//
// Buckets idle for twice the cleanup interval are dropped by a background
// goroutine, stopped with Stop.
type LoginLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	limiters map[string]*ipLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLoginLimiter starts a limiter allowing perMinute attempts per IP.
// perMinute <= 0 disables limiting.
func NewLoginLimiter(perMinute int, cleanupInterval time.Duration, logger *slog.Logger) *LoginLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &LoginLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		idleTTL:  2 * cleanupInterval,
		logger:   logger,
		limiters: make(map[string]*ipLimiter),
		stopCh:   make(chan struct{}),
	}
	if perMinute <= 0 {
		l.limit = rate.Inf
	}
	go l.cleanupLoop(cleanupInterval)
	return l
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware rejects requests over the limit with 429 and a Retry-After.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			l.logger.WarnContext(r.Context(), "login rate limit exceeded", slog.String("ip", ip))
			writeRateLimitResponse(w, l.limit)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len is the number of tracked IPs.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *LoginLimiter) allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

func (l *LoginLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *LoginLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > l.idleTTL {
			delete(l.limiters, ip)
		}
	}
}

// clientIP is the peer address recorded by PeerAddr without the port,
// falling back to RemoteAddr when PeerAddr is not mounted.
func clientIP(r *http.Request) string {
	addr, ok := r.Context().Value(peerKey{}).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// writeRateLimitResponse sends 429 with Retry-After set to the time one
// token takes to refill.
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1.0 / float64(limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limited",
		"message": "Too many sign-in attempts. Please try again later.",
	})
}
