package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
)

type fakeTenantStore struct {
	mu       sync.Mutex
	records  map[string]types.TenantRecord // keyed by tenant id
	fetches  atomic.Int64
	fetchErr error
	delay    time.Duration
}

func newFakeTenantStore(recs ...types.TenantRecord) *fakeTenantStore {
	s := &fakeTenantStore{records: make(map[string]types.TenantRecord)}
	for _, r := range recs {
		s.records[r.TenantID] = r
	}
	return s
}

func (s *fakeTenantStore) find(match func(types.TenantRecord) bool) (types.TenantRecord, bool, error) {
	s.fetches.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fetchErr != nil {
		return types.TenantRecord{}, false, s.fetchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if match(r) {
			return r, true, nil
		}
	}
	return types.TenantRecord{}, false, nil
}

func (s *fakeTenantStore) FindByID(_ context.Context, id string) (types.TenantRecord, bool, error) {
	return s.find(func(r types.TenantRecord) bool { return r.TenantID == id })
}

func (s *fakeTenantStore) FindBySubdomain(_ context.Context, sub string) (types.TenantRecord, bool, error) {
	return s.find(func(r types.TenantRecord) bool { return r.Subdomain == sub })
}

func (s *fakeTenantStore) FindByDomain(_ context.Context, domain string) (types.TenantRecord, bool, error) {
	return s.find(func(r types.TenantRecord) bool {
		for _, d := range r.Domains {
			if d == domain {
				return true
			}
		}
		return false
	})
}

func (s *fakeTenantStore) List(context.Context, types.TenantStatus, int, int) ([]types.TenantRecord, error) {
	return nil, nil
}

func (s *fakeTenantStore) Create(_ context.Context, rec types.TenantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TenantID] = rec
	return nil
}

func (s *fakeTenantStore) UpdateStatus(_ context.Context, id string, status types.TenantStatus, reason string) (types.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return types.TenantRecord{}, errors.New("not found")
	}
	r.Status = status
	r.StatusReason = reason
	s.records[id] = r
	return r, nil
}

func (s *fakeTenantStore) UpdateConfig(_ context.Context, id string, cfg types.TenantConfig) (types.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return types.TenantRecord{}, errors.New("not found")
	}
	r.Config = cfg
	s.records[id] = r
	return r, nil
}

func (s *fakeTenantStore) IncrementTaskExecutions(_ context.Context, id string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return errors.New("not found")
	}
	r.TotalTaskExecutions += n
	s.records[id] = r
	return nil
}

func acmeRecord() types.TenantRecord {
	return types.TenantRecord{
		TenantID:  "acme_20250101",
		Name:      "Acme Health",
		Subdomain: "acme",
		Domains:   []string{"portal.acme.example"},
		Status:    types.StatusActive,
	}
}

func TestCacheGet_HitWithinTTL(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	mock := clock.NewMock()
	c := NewConfigCache(store, WithCacheClock(mock))

	ident := TenantIdentifier{Kind: IdentifierID, Value: "acme_20250101"}
	for i := 0; i < 3; i++ {
		rec, found, err := c.Get(context.Background(), ident)
		if err != nil || !found {
			t.Fatalf("found=%v err=%v", found, err)
		}
		if rec.TenantID != "acme_20250101" {
			t.Fatalf("rec=%v", rec)
		}
	}
	if got := store.fetches.Load(); got != 1 {
		t.Fatalf("fetches=%d", got)
	}
}

func TestCacheGet_ExpiryRefetches(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	mock := clock.NewMock()
	c := NewConfigCache(store, WithCacheClock(mock), WithCacheTTL(time.Minute))

	ident := TenantIdentifier{Kind: IdentifierSubdomain, Value: "acme"}
	if _, found, _ := c.Get(context.Background(), ident); !found {
		t.Fatal("expected found")
	}
	mock.Add(59 * time.Second)
	if _, found, _ := c.Get(context.Background(), ident); !found {
		t.Fatal("expected found")
	}
	if got := store.fetches.Load(); got != 1 {
		t.Fatalf("fetches=%d before expiry", got)
	}

	mock.Add(2 * time.Second)
	if _, found, _ := c.Get(context.Background(), ident); !found {
		t.Fatal("expected found after expiry")
	}
	if got := store.fetches.Load(); got != 2 {
		t.Fatalf("fetches=%d after expiry", got)
	}
}

func TestCacheGet_SingleFlight(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	store.delay = 20 * time.Millisecond
	c := NewConfigCache(store)

	ident := TenantIdentifier{Kind: IdentifierID, Value: "acme_20250101"}
	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, found, err := c.Get(context.Background(), ident)
			if err != nil {
				errs <- err
				return
			}
			if !found {
				errs <- errors.New("not found")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("err=%v", err)
	}
	if got := store.fetches.Load(); got != 1 {
		t.Fatalf("fetches=%d, want 1", got)
	}
}

func TestCacheGet_PrimesAllVariants(t *testing.T) {
	store := newFakeTenantStore(acmeRecord())
	c := NewConfigCache(store)

	if _, found, _ := c.Get(context.Background(), TenantIdentifier{Kind: IdentifierSubdomain, Value: "acme"}); !found {
		t.Fatal("expected found")
	}
	// Lookups via the other identifier variants hit the primed entries.
	if _, found, _ := c.Get(context.Background(), TenantIdentifier{Kind: IdentifierID, Value: "acme_20250101"}); !found {
		t.Fatal("expected found by id")
	}
	if _, found, _ := c.Get(context.Background(), TenantIdentifier{Kind: IdentifierDomain, Value: "portal.acme.example"}); !found {
		t.Fatal("expected found by domain")
	}
	if got := store.fetches.Load(); got != 1 {
		t.Fatalf("fetches=%d", got)
	}
}

func TestCacheGet_MissNotCached(t *testing.T) {
	store := newFakeTenantStore()
	c := NewConfigCache(store)

	ident := TenantIdentifier{Kind: IdentifierID, Value: "ghost"}
	if _, found, err := c.Get(context.Background(), ident); found || err != nil {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if _, found, _ := c.Get(context.Background(), ident); found {
		t.Fatal("expected miss")
	}
	if got := store.fetches.Load(); got != 2 {
		t.Fatalf("fetches=%d, negative results are not cached", got)
	}
}

func TestCacheGet_StoreErrorPropagates(t *testing.T) {
	store := newFakeTenantStore()
	store.fetchErr = errors.New("store down")
	c := NewConfigCache(store)

	_, found, err := c.Get(context.Background(), TenantIdentifier{Kind: IdentifierID, Value: "acme_20250101"})
	if err == nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
}

func TestInvalidate_RemovesAllVariants(t *testing.T) {
	rec := acmeRecord()
	store := newFakeTenantStore(rec)
	c := NewConfigCache(store)

	if _, found, _ := c.Get(context.Background(), TenantIdentifier{Kind: IdentifierID, Value: rec.TenantID}); !found {
		t.Fatal("expected found")
	}
	c.Invalidate(rec)

	for _, ident := range []TenantIdentifier{
		{Kind: IdentifierID, Value: rec.TenantID},
		{Kind: IdentifierSubdomain, Value: rec.Subdomain},
		{Kind: IdentifierDomain, Value: rec.Domains[0]},
	} {
		before := store.fetches.Load()
		if _, found, _ := c.Get(context.Background(), ident); !found {
			t.Fatalf("ident=%v expected refetch to find", ident)
		}
		if store.fetches.Load() != before+1 {
			t.Fatalf("ident=%v expected upstream fetch after invalidate", ident)
		}
		c.Invalidate(rec)
	}
}
