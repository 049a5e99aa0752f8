package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// perIPLimiter maps a client IP to its own token-bucket limiter, mirroring
// the map-of-limiters pattern used for inbound request rate limiting, here
// reused for publish-endpoint abuse protection.
type perIPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newPerIPLimiter(r rate.Limit, burst int) *perIPLimiter {
	return &perIPLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *perIPLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

// publishRateLimit rejects publish requests once a publisher's IP exceeds
// its token bucket.
func (s *Server) publishRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := s.publishRL.get(c.ClientIP())
		if !lim.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "too many publish requests, please slow down",
				"retry_after": int(time.Second.Seconds()),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
