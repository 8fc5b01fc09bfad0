package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

// RateLimiter is a fixed-window request limiter keyed by client id or IP.
type RateLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// Call Stop to end its cleanup goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
}

// Handler returns the fiber middleware. A limit <= 0 disables limiting.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.limit <= 0 {
			return c.Next()
		}

		key := c.IP()
		if clientID, ok := c.Locals(logger.ClientIDKey).(string); ok && clientID != "" {
			key = "client:" + clientID
		}

		rl.mu.Lock()
		now := rl.now()
		info, exists := rl.requests[key]
		if !exists || now.After(info.expiresAt) {
			info = &requestInfo{expiresAt: now.Add(rl.window)}
			rl.requests[key] = info
		}
		info.count++
		count, resetAt := info.count, info.expiresAt
		rl.mu.Unlock()

		remaining := rl.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > rl.limit {
			appErr := apperr.RateLimited(resetAt.Sub(now))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(appErr.Details["retry_after"].(int)))
			return appErr
		}
		return c.Next()
	}
}
