package services

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
)

const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	record    types.TenantRecord
	expiresAt time.Time
}

type fetchResult struct {
	record types.TenantRecord
	found  bool
}

// ConfigCache is a TTL cache over TenantStore lookups. Concurrent misses
// for the same key collapse into one upstream fetch; a hit on one
// identifier variant also primes the other variants of the same record.
type ConfigCache struct {
	store  ports.TenantStore
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type CacheOption func(*ConfigCache)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *ConfigCache) { c.ttl = ttl }
}

func WithCacheClock(clk clock.Clock) CacheOption {
	return func(c *ConfigCache) { c.clock = clk }
}

func WithCacheLogger(log *zap.Logger) CacheOption {
	return func(c *ConfigCache) { c.logger = log.With(zap.String("service", "tenant-config-cache")) }
}

func NewConfigCache(store ports.TenantStore, opts ...CacheOption) *ConfigCache {
	c := &ConfigCache{
		store:   store,
		ttl:     DefaultCacheTTL,
		clock:   clock.New(),
		logger:  zap.NewNop(),
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the tenant record for an identifier. Within the TTL the
// cached snapshot is served; on miss or expiry exactly one upstream fetch
// runs per key regardless of concurrent callers. Store errors propagate
// so callers can fail closed.
func (c *ConfigCache) Get(ctx context.Context, ident TenantIdentifier) (types.TenantRecord, bool, error) {
	key := ident.CacheKey()

	if rec, ok := c.lookup(key); ok {
		return rec, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have primed the entry already.
		if rec, ok := c.lookup(key); ok {
			return fetchResult{record: rec, found: true}, nil
		}

		rec, found, err := c.fetch(ctx, ident)
		if err != nil {
			return fetchResult{}, err
		}
		if found {
			c.prime(rec)
		}
		return fetchResult{record: rec, found: found}, nil
	})
	if err != nil {
		c.logger.Warn("tenant_fetch_failed", zap.String("key", key), zap.Error(err))
		return types.TenantRecord{}, false, err
	}

	res := v.(fetchResult)
	return res.record, res.found, nil
}

// Invalidate removes every cache key that maps to the record. Callers
// must invoke it after any tenant write.
func (c *ConfigCache) Invalidate(rec types.TenantRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range recordKeys(rec) {
		delete(c.entries, key)
	}
}

func (c *ConfigCache) lookup(key string) (types.TenantRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return types.TenantRecord{}, false
	}
	return e.record, true
}

func (c *ConfigCache) fetch(ctx context.Context, ident TenantIdentifier) (types.TenantRecord, bool, error) {
	switch ident.Kind {
	case IdentifierID:
		return c.store.FindByID(ctx, ident.Value)
	case IdentifierSubdomain:
		return c.store.FindBySubdomain(ctx, ident.Value)
	case IdentifierDomain:
		return c.store.FindByDomain(ctx, ident.Value)
	default:
		return types.TenantRecord{}, false, nil
	}
}

func (c *ConfigCache) prime(rec types.TenantRecord) {
	e := cacheEntry{record: rec, expiresAt: c.clock.Now().Add(c.ttl)}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range recordKeys(rec) {
		c.entries[key] = e
	}
}

func recordKeys(rec types.TenantRecord) []string {
	keys := make([]string, 0, 2+len(rec.Domains))
	if rec.TenantID != "" {
		keys = append(keys, TenantIdentifier{Kind: IdentifierID, Value: rec.TenantID}.CacheKey())
	}
	if rec.Subdomain != "" {
		keys = append(keys, TenantIdentifier{Kind: IdentifierSubdomain, Value: rec.Subdomain}.CacheKey())
	}
	for _, d := range rec.Domains {
		keys = append(keys, TenantIdentifier{Kind: IdentifierDomain, Value: d}.CacheKey())
	}
	return keys
}
