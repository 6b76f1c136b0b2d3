package dbrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
)

// openLazyPool builds a real pgx pool that never connects; pgxpool only
// dials on first use.
func openLazyPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

func testDSN(tenantID string) string {
	return "postgres://app@localhost:5432/tenant_" + tenantID
}

func newTestRouter(t *testing.T, cfg Config) *Router {
	t.Helper()
	if cfg.DSNFor == nil {
		cfg.DSNFor = testDSN
	}
	if cfg.OpenPool == nil {
		cfg.OpenPool = openLazyPool
	}
	r := New(cfg)
	t.Cleanup(r.Close)
	return r
}

func TestAcquire_LazyOpenAndReuse(t *testing.T) {
	opens := 0
	r := newTestRouter(t, Config{
		OpenPool: func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			opens++
			return openLazyPool(ctx, dsn)
		},
	})

	h1, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	h1.Release()

	h2, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if h2.Pool() != h1.Pool() {
		t.Fatal("expected pool reuse for same tenant")
	}
	h2.Release()

	if opens != 1 {
		t.Fatalf("opens=%d", opens)
	}
}

func TestAcquire_IsolatedPerTenant(t *testing.T) {
	r := newTestRouter(t, Config{})

	ha, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer ha.Release()
	hb, err := r.Acquire(context.Background(), "bloom_20250202")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer hb.Release()

	if ha.Pool() == hb.Pool() {
		t.Fatal("tenants must not share a pool")
	}
	if r.poolCount() != 2 {
		t.Fatalf("pools=%d", r.poolCount())
	}
}

func TestAcquire_BoundBlocksThenTimesOut(t *testing.T) {
	r := newTestRouter(t, Config{
		MaxPerTenant:   1,
		AcquireTimeout: 50 * time.Millisecond,
	})

	h, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	start := time.Now()
	_, err = r.Acquire(context.Background(), "acme_20250101")
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("acquire returned before the wait bound")
	}

	h.Release()
	h2, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("after release: err=%v", err)
	}
	h2.Release()
}

func TestAcquire_BlockedWaiterUnblocksOnRelease(t *testing.T) {
	r := newTestRouter(t, Config{
		MaxPerTenant:   1,
		AcquireTimeout: time.Second,
	})

	h, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	got := make(chan error, 1)
	go func() {
		h2, err := r.Acquire(context.Background(), "acme_20250101")
		if err == nil {
			h2.Release()
		}
		got <- err
	}()

	time.Sleep(10 * time.Millisecond)
	h.Release()

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	r := newTestRouter(t, Config{MaxPerTenant: 1, AcquireTimeout: 50 * time.Millisecond})

	h, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	h.Release()
	h.Release() // second call must not double-free the semaphore

	h2, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer h2.Release()
	if _, err := r.Acquire(context.Background(), "acme_20250101"); !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("bound widened by double release: err=%v", err)
	}
}

func TestReapIdlePools(t *testing.T) {
	mock := clock.NewMock()
	r := newTestRouter(t, Config{
		Clock:     mock,
		IdleAfter: 10 * time.Minute,
	})

	h, err := r.Acquire(context.Background(), "acme_20250101")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	h.Release()
	if r.poolCount() != 1 {
		t.Fatalf("pools=%d", r.poolCount())
	}

	// Held pools survive the idle window.
	held, err := r.Acquire(context.Background(), "bloom_20250202")
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	mock.Add(11 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for r.poolCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("pools=%d, idle pool never reaped", r.poolCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	held.Release()
}
