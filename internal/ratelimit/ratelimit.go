package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// InMemoryLimiter keeps one token bucket per key.
type InMemoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	r       rate.Limit
	b       int
}

// NewInMemoryLimiter allows requests per period per key, with bursts of up
// to burst requests. NewInMemoryLimiter(10, time.Minute, 3) lets a client
// generate ten times a minute, three at once.
func NewInMemoryLimiter(requests int, per time.Duration, burst int) *InMemoryLimiter {
	if requests < 1 {
		requests = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &InMemoryLimiter{
		clients: make(map[string]*rate.Limiter),
		r:       rate.Every(per / time.Duration(requests)),
		b:       burst,
	}
}

func (l *InMemoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.clients[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.clients[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware rejects requests over the limit with 429. Clients are keyed by IP.
func Middleware(l Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, try again later",
			})
		}
		return c.Next()
	}
}
