package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map. When full it is reset, which
// briefly hands every client a fresh burst.
const maxTrackedClients = 10000

type clientLimiter struct {
	mu       sync.Mutex
	rps      int
	limiters map[string]*rate.Limiter
}

func (l *clientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	if len(l.limiters) >= maxTrackedClients {
		l.limiters = make(map[string]*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.rps)
	l.limiters[key] = lim
	return lim
}

// RateLimitMiddleware allows rps requests per second per client IP.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := &clientLimiter{
		rps:      rps,
		limiters: make(map[string]*rate.Limiter),
	}

	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
