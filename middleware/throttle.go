package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottleConfig holds per-client limits
type ThrottleConfig struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
}

// DefaultThrottleConfig allows 5 code requests a minute per client
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		RequestsPerMinute: 5,
		Burst:             5,
		CleanupInterval:   5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle limits requests per client IP. It guards endpoints that trigger
// outbound side effects and plays no part in authorization.
type Throttle struct {
	cfg      ThrottleConfig
	limit    rate.Limit
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	logger   *zap.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewThrottle creates a throttle and starts its cleanup loop
func NewThrottle(cfg ThrottleConfig, logger *zap.Logger) *Throttle {
	defaults := DefaultThrottleConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	t := &Throttle{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		clients: make(map[string]*clientLimiter),
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Stop ends the cleanup loop. Safe to call more than once.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Middleware rejects a client over its limit with 429 and Retry-After
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !t.allow(client) {
			retryAfter := int(math.Ceil(1.0 / float64(t.limit)))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			t.logger.Warn("rate limit exceeded",
				zap.String("client", client),
				zap.String("path", r.URL.Path))
			_ = utils.WriteTooManyRequests(w, services.ErrRateLimitExceeded.Message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len returns the number of tracked clients
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *Throttle) allow(client string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cl, ok := t.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.cfg.Burst)}
		t.clients[client] = cl
	}
	cl.lastAccess = now
	return cl.limiter.AllowN(now, 1)
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCh:
			return
		}
	}
}

// cleanup forgets clients idle for more than two cleanup intervals
func (t *Throttle) cleanup() {
	idle := t.cfg.CleanupInterval * 2
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for client, cl := range t.clients {
		if now.Sub(cl.lastAccess) > idle {
			delete(t.clients, client)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
