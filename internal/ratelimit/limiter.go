// SPDX-License-Identifier: MIT

package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mesad",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"limit_type", "class"},
)

// Config holds rate limiting configuration. Classes partition the API
// surface: "scan" for QR scans, "publish" for event publication, "admin"
// for staff operations.
type Config struct {
	// Global limits across all clients.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-IP limits.
	PerIPRate  rate.Limit
	PerIPBurst int

	// Per-class limits.
	ClassRates map[string]rate.Limit
	ClassBurst map[string]int

	// Cleanup interval for per-IP limiters.
	CleanupInterval time.Duration
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  200,
		GlobalBurst: 400,

		PerIPRate:  10,
		PerIPBurst: 20,

		ClassRates: map[string]rate.Limit{
			"scan":    5, // one table scans occasionally, not in bursts
			"publish": 50,
			"admin":   20,
		},
		ClassBurst: map[string]int{
			"scan":    10,
			"publish": 100,
			"admin":   40,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter enforces global, per-class and per-IP request limits.
type Limiter struct {
	config Config

	global   *rate.Limiter
	perIP    map[string]*rate.Limiter
	perClass map[string]*rate.Limiter
	mu       sync.RWMutex

	lastCleanup time.Time
}

// New creates a limiter from the given config.
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		perClass:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	for class, classRate := range config.ClassRates {
		l.perClass[class] = rate.NewLimiter(classRate, config.ClassBurst[class])
	}

	return l
}

// Allow reports whether a request from clientIP in the given class may
// proceed. Checks are ordered cheapest first; any rejection is counted.
func (l *Limiter) Allow(clientIP, class string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", class).Inc()
		return false
	}

	l.mu.RLock()
	classLimiter, exists := l.perClass[class]
	l.mu.RUnlock()

	if exists && !classLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_class", class).Inc()
		return false
	}

	if !l.ipLimiter(clientIP).Allow() {
		rateLimitExceeded.WithLabelValues("per_ip", class).Inc()
		return false
	}

	l.maybeCleanup()

	return true
}

func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}

	return limiter
}

// maybeCleanup drops all per-IP limiters once the cleanup interval has
// passed. Dropping everything is coarse but keeps the map bounded without
// tracking last-access times.
func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request, honoring
// X-Forwarded-For and X-Real-IP set by reverse proxies.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// May contain "client, proxy1, proxy2"; the first entry is the client.
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
