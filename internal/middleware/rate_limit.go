package middleware

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func skipRateLimit(path string) bool {
	return path == "/health" || strings.HasSuffix(path, "/api/v1/health")
}

// RateLimitMiddleware applies one limiter to every request.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipRateLimit(c.Request.URL.Path) {
			c.Next()
			return
		}

		if !limiter.Allow() {
			log.Printf("Rate limit blocked IP: %s for path: %s", c.ClientIP(), c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "please try again later",
			})
			return
		}

		c.Next()
	}
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one limiter per client IP. Entries idle for longer
// than the idle window are dropped by Cleanup.
type IPRateLimiter struct {
	ips  map[string]*ipEntry
	mu   sync.Mutex
	r    rate.Limit
	b    int
	idle time.Duration
	now  func() time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:  make(map[string]*ipEntry),
		r:    r,
		b:    b,
		idle: 10 * time.Minute,
		now:  time.Now,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.ips[ip]
	if !exists {
		entry = &ipEntry{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = entry
	}
	entry.lastSeen = i.now()
	return entry.limiter
}

// Cleanup removes idle entries and returns how many were removed.
func (i *IPRateLimiter) Cleanup() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-i.idle)
	removed := 0
	for ip, entry := range i.ips {
		if entry.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

func IPRateLimitMiddleware(ipLimiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipRateLimit(c.Request.URL.Path) {
			c.Next()
			return
		}

		if !ipLimiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded for your IP",
				"message": "please try again in a few seconds",
			})
			return
		}

		if ipLimiter.Len() > 10000 {
			ipLimiter.Cleanup()
		}
		c.Next()
	}
}

// RateLimiters returns the global limiter followed by the per-IP limiter.
// A non-positive rate leaves that limiter out.
func RateLimiters(globalRPS, globalBurst, ipRPS, ipBurst int) []gin.HandlerFunc {
	var handlers []gin.HandlerFunc
	if globalRPS > 0 {
		handlers = append(handlers, RateLimitMiddleware(rate.NewLimiter(rate.Limit(globalRPS), globalBurst)))
	}
	if ipRPS > 0 {
		handlers = append(handlers, IPRateLimitMiddleware(NewIPRateLimiter(rate.Limit(ipRPS), ipBurst)))
	}
	return handlers
}
