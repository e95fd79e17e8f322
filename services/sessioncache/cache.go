package sessioncache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/internal/observability"
	"go.uber.org/zap"
)

// InstitutionSession is the resolved view of a verified legacy institution token
type InstitutionSession struct {
	InstitutionID uuid.UUID  `json:"institution_id"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	UserID        uuid.UUID  `json:"user_id"`
	ValidUntil    time.Time  `json:"valid_until"`
}

// Config holds cache settings
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxSize       int // 0 means unbounded
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		SweepInterval: time.Minute,
		MaxSize:       10000,
	}
}

// cacheEntry is a single entry tracked in the LRU list
type cacheEntry struct {
	key     string
	session InstitutionSession
	element *list.Element
}

// Cache memoizes legacy token verification for a bounded TTL.
// It is never a source of truth: a miss only costs a full verification.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	cfg     Config
	now     func() time.Time
	metrics observability.Metrics
	logger  *zap.Logger

	hits   uint64
	misses uint64

	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics reports lookups and size
func WithMetrics(m observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache. Call Start to run the periodic sweep.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		cfg:     cfg,
		now:     time.Now,
		metrics: observability.NopMetrics{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the map key of a token, so raw bearer tokens are never held
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached session for token. Expired entries are removed and reported as a miss.
func (c *Cache) Get(token string) (*InstitutionSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(token)
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		c.metrics.RecordSessionCache("miss")
		return nil, false
	}

	if !c.now().Before(entry.session.ValidUntil) {
		c.removeEntry(key)
		c.misses++
		c.metrics.RecordSessionCache("expired")
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	c.metrics.RecordSessionCache("hit")

	session := entry.session
	return &session, true
}

// Set stores session for token and returns the stored ValidUntil, which is
// capped at the token's own expiry.
func (c *Cache) Set(token string, session InstitutionSession, tokenExpiry time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	validUntil := c.now().Add(c.cfg.TTL)
	if !tokenExpiry.IsZero() && tokenExpiry.Before(validUntil) {
		validUntil = tokenExpiry
	}
	session.ValidUntil = validUntil

	key := Key(token)
	if entry, ok := c.entries[key]; ok {
		entry.session = session
		c.lruList.MoveToFront(entry.element)
		return validUntil
	}

	if c.cfg.MaxSize > 0 && c.lruList.Len() >= c.cfg.MaxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{key: key, session: session}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
	c.metrics.SetSessionCacheSize(len(c.entries))
	return validUntil
}

// Delete evicts the entry for token. It reports whether one was present.
func (c *Cache) Delete(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(token)
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeEntry(key)
	return true
}

// Sweep removes every expired entry and returns how many were removed
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.session.ValidUntil) {
			c.removeEntry(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats represents cache statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.entries),
		MaxSize: c.cfg.MaxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// Start launches the background sweep
func (c *Cache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("session cache already started")
	}
	interval := c.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}

	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.started = true

	go c.sweepLoop(interval, c.stopCh, c.done)

	c.logger.Info("session cache started",
		zap.Duration("ttl", c.cfg.TTL),
		zap.Duration("sweep_interval", interval),
		zap.Int("max_size", c.cfg.MaxSize))
	return nil
}

// Stop halts the sweep and drops every entry. It is safe to call more than once.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stopCh, done := c.stopCh, c.done
	c.mu.Unlock()

	close(stopCh)
	<-done

	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
	c.mu.Unlock()

	c.logger.Info("session cache stopped")
}

func (c *Cache) sweepLoop(interval time.Duration, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("session cache sweep", zap.Int("removed", n))
			}
		case <-stopCh:
			return
		}
	}
}

// removeEntry must be called with the lock held
func (c *Cache) removeEntry(key string) {
	if entry, ok := c.entries[key]; ok {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
		c.metrics.SetSessionCacheSize(len(c.entries))
	}
}

// evictLRU must be called with the lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(string))
}
