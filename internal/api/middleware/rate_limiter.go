package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// RateLimiterConfig holds configuration for request throttling
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator identifies the caller; requests with an empty key are not limited
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig limits each client IP to 120 requests a minute.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    120,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

type clientWindow struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter is an in-process fixed-window limiter for the kiosk routes.
// OTP guessing is throttled separately, and durably, by ratelimit.RateLimiter.
type RateLimiter struct {
	config  RateLimiterConfig
	windows map[string]*clientWindow
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.Max == 0 {
		config.Max = defaults.Max
	}
	if config.Window == 0 {
		config.Window = defaults.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = defaults.KeyGenerator
	}

	rl := &RateLimiter{
		config:  config,
		windows: make(map[string]*clientWindow),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		now := rl.now()

		rl.mu.Lock()
		w, exists := rl.windows[key]
		if !exists || !now.Before(w.windowEnd) {
			w = &clientWindow{windowEnd: now.Add(rl.config.Window)}
			rl.windows[key] = w
		}
		w.count++
		w.lastAccess = now
		count := w.count
		windowEnd := w.windowEnd
		rl.mu.Unlock()

		remaining := rl.config.Max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			c.Set("Retry-After", strconv.Itoa(int(windowEnd.Sub(now).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evict(rl.now())
		}
	}
}

// evict drops clients idle for two windows.
func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.Sub(w.lastAccess) > 2*rl.config.Window {
			delete(rl.windows, key)
		}
	}
}
