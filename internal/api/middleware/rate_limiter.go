package middleware

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

// ClientIDHeader identifies a browser before it has a session
const ClientIDHeader = "X-Client-ID"

// EndpointRateLimit overrides the default limit for paths ending in a suffix
type EndpointRateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// KeyGenerator returns the bucket of a request, "" skips limiting
	KeyGenerator func(c *fiber.Ctx) string
	// PerEndpoint limits keyed by path suffix, counted separately
	PerEndpoint map[string]EndpointRateLimit
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:          60,
		Window:       time.Minute,
		KeyGenerator: SessionKey,
	}
}

// InferenceRateLimits caps the endpoints that call the inference service.
// Each submit is one remote call, so they get a share of the general limit.
func InferenceRateLimits(total int) map[string]EndpointRateLimit {
	perCall := total / 3
	if perCall < 1 {
		perCall = 1
	}
	return map[string]EndpointRateLimit{
		"/compare":  {Requests: perCall, Window: time.Minute},
		"/liveness": {Requests: perCall, Window: time.Minute},
		"/analyze":  {Requests: perCall, Window: time.Minute},
		"/refresh":  {Requests: perCall, Window: time.Minute},
	}
}

// SessionKey buckets /v1/sessions/:id/... by session id. Other requests
// fall back to the client id header, then the remote address.
func SessionKey(c *fiber.Ctx) string {
	parts := strings.Split(strings.Trim(c.Path(), "/"), "/")
	if len(parts) >= 3 && parts[1] == "sessions" && parts[2] != "" {
		return "session:" + parts[2]
	}
	if clientID := strings.TrimSpace(c.Get(ClientIDHeader)); clientID != "" {
		return "client:" + clientID
	}
	return "ip:" + c.IP()
}

// window tracks rate limiting state for a key
type window struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements fixed window rate limiting per key
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*window
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
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
		config:   config,
		limiters: make(map[string]*window),
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// limitFor returns the limit and counter key suffix of path
func (rl *RateLimiter) limitFor(path string) (int, time.Duration, string) {
	for suffix, limit := range rl.config.PerEndpoint {
		if strings.HasSuffix(path, suffix) {
			return limit.Requests, limit.Window, suffix
		}
	}
	return rl.config.Max, rl.config.Window, ""
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		limit, windowSize, endpoint := rl.limitFor(c.Path())
		if endpoint != "" {
			key += "|" + endpoint
		}

		now := time.Now()

		rl.mu.Lock()
		limiter, exists := rl.limiters[key]
		if !exists || now.After(limiter.windowEnd) {
			limiter = &window{windowEnd: now.Add(windowSize)}
			rl.limiters[key] = limiter
		}
		limiter.count++
		limiter.lastAccess = now
		count := limiter.count
		windowEnd := limiter.windowEnd
		rl.mu.Unlock()

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}

		// Set rate limit headers
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > limit {
			c.Set("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())))
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
			rl.mu.Lock()
			now := time.Now()
			for key, limiter := range rl.limiters {
				// Remove entries that haven't been accessed in 2 windows
				if now.Sub(limiter.lastAccess) > 2*rl.config.Window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
