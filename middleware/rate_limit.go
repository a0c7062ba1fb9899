package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/utils"
)

const limiterIdle = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

type limiterSet struct {
	mu    sync.Mutex
	items map[string]*rateLimiter
	limit rate.Limit
	burst int
}

// RateLimitMiddleware applies an IP based token bucket. Each call gets its own set
// of buckets so write endpoints can be limited more tightly than reads.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = config.Get().RateLimitPerMinute
	}
	set := &limiterSet{
		items: map[string]*rateLimiter{},
		limit: rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst: max(perMinute/2, 1),
	}

	return func(ctx *gin.Context) {
		if !set.allow(ctx.ClientIP()) {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, l := range s.items {
		if now.After(l.expires) {
			delete(s.items, k)
		}
	}

	l, ok := s.items[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.items[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter.Allow()
}
