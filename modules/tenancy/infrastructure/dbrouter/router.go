// Package dbrouter maps tenant ids to bounded, lazily opened storage
// pools. One pgx pool exists per active tenant per process; handle
// acquisition is limited by a weighted semaphore so a noisy tenant can
// never open unbounded connections.
package dbrouter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrAcquireTimeout = errors.New("dbrouter: pool exhausted, acquire timed out")

const (
	DefaultMaxPerTenant   = 8
	DefaultAcquireTimeout = 5 * time.Second
	DefaultIdleAfter      = 10 * time.Minute
	reapInterval          = time.Minute
)

type Config struct {
	// DSNFor builds the connection string for one tenant's database.
	DSNFor func(tenantID string) string
	// OpenPool defaults to pgxpool.New; injectable for tests.
	OpenPool func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

	MaxPerTenant   int64
	AcquireTimeout time.Duration
	IdleAfter      time.Duration
	Clock          clock.Clock
	Logger         *zap.Logger
}

type tenantPool struct {
	pool     *pgxpool.Pool
	sem      *semaphore.Weighted
	active   int
	lastUsed time.Time
}

type Router struct {
	cfg Config

	mu    sync.Mutex
	pools map[string]*tenantPool

	done chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config) *Router {
	if cfg.OpenPool == nil {
		cfg.OpenPool = pgxpool.New
	}
	if cfg.MaxPerTenant <= 0 {
		cfg.MaxPerTenant = DefaultMaxPerTenant
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = DefaultIdleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Router{
		cfg:   cfg,
		pools: make(map[string]*tenantPool),
		done:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.reapIdle()
	return r
}

// Handle is one bounded lease on a tenant's pool. Release must be called
// on every exit path; releasing twice is a no-op.
type Handle struct {
	pool    *pgxpool.Pool
	release func()
	once    sync.Once
}

func (h *Handle) Pool() *pgxpool.Pool { return h.pool }

func (h *Handle) Release() { h.once.Do(h.release) }

// Acquire returns a handle on the tenant's pool, opening it lazily on
// first use. When the per-tenant bound is reached the call blocks until
// a handle frees up, the caller's context ends, or the acquire timeout
// elapses.
func (r *Router) Acquire(ctx context.Context, tenantID string) (*Handle, error) {
	tp, err := r.tenantPool(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	defer cancel()
	if err := tp.sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrAcquireTimeout
		}
		return nil, err
	}

	r.mu.Lock()
	tp.active++
	tp.lastUsed = r.cfg.Clock.Now()
	r.mu.Unlock()

	return &Handle{
		pool: tp.pool,
		release: func() {
			r.mu.Lock()
			tp.active--
			tp.lastUsed = r.cfg.Clock.Now()
			r.mu.Unlock()
			tp.sem.Release(1)
		},
	}, nil
}

func (r *Router) tenantPool(ctx context.Context, tenantID string) (*tenantPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tp, ok := r.pools[tenantID]; ok {
		return tp, nil
	}

	pool, err := r.cfg.OpenPool(ctx, r.cfg.DSNFor(tenantID))
	if err != nil {
		return nil, err
	}
	tp := &tenantPool{
		pool:     pool,
		sem:      semaphore.NewWeighted(r.cfg.MaxPerTenant),
		lastUsed: r.cfg.Clock.Now(),
	}
	r.pools[tenantID] = tp
	r.cfg.Logger.Info("tenant_pool_opened", zap.String("tenant_id", tenantID))
	return tp, nil
}

func (r *Router) reapIdle() {
	defer r.wg.Done()
	ticker := r.cfg.Clock.Ticker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.closeIdle()
		}
	}
}

func (r *Router) closeIdle() {
	now := r.cfg.Clock.Now()
	var closed []*pgxpool.Pool

	r.mu.Lock()
	for id, tp := range r.pools {
		if tp.active == 0 && now.Sub(tp.lastUsed) >= r.cfg.IdleAfter {
			closed = append(closed, tp.pool)
			delete(r.pools, id)
			r.cfg.Logger.Info("tenant_pool_reaped", zap.String("tenant_id", id))
		}
	}
	r.mu.Unlock()

	for _, p := range closed {
		p.Close()
	}
}

func (r *Router) poolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Close stops the reaper and closes every pool.
func (r *Router) Close() {
	close(r.done)
	r.wg.Wait()

	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*tenantPool)
	r.mu.Unlock()

	for _, tp := range pools {
		tp.pool.Close()
	}
}
