package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-reconcile/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubIdentityStore struct {
	mu       sync.Mutex
	identity core.Identity
	getCalls int
	fpCalls  int
	getErr   error
}

func (s *stubIdentityStore) InsertOrFetch(_ context.Context, identity core.Identity) (core.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.ID == "" {
		s.identity = identity
		return identity, true, nil
	}
	return s.identity, false, nil
}

func (s *stubIdentityStore) Get(_ context.Context, _ string) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Identity{}, s.getErr
	}
	return s.identity, nil
}

func (s *stubIdentityStore) GetByFingerprint(_ context.Context, _ string, _ string) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fpCalls++
	if s.getErr != nil {
		return core.Identity{}, s.getErr
	}
	return s.identity, nil
}

func (s *stubIdentityStore) ListByKinds(_ context.Context, _ string, _ []core.IdentityKind, _ time.Time) ([]core.Identity, error) {
	return nil, nil
}

func (s *stubIdentityStore) Touch(_ context.Context, _ []string, _ time.Time) error {
	return nil
}

func (s *stubIdentityStore) InsertLink(_ context.Context, link core.IdentityLink) (core.IdentityLink, error) {
	return link, nil
}

func (s *stubIdentityStore) ListLinks(_ context.Context, _ string) ([]core.IdentityLink, error) {
	return nil, nil
}

func testIdentity() core.Identity {
	now := time.Now().UTC()
	return core.Identity{
		ID:          "id-cache-1",
		TenantID:    "t1",
		Fingerprint: "payout|stripe|po_cache",
		Kind:        core.IdentityKindPayout,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCachedIdentityStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	base := &stubIdentityStore{identity: testIdentity()}
	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	if _, err := store.Get(context.Background(), "id-cache-1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), "id-cache-1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedIdentityStore_InsertOrFetchInvalidatesBothKeys(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	base := &stubIdentityStore{identity: testIdentity()}
	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "id-cache-1"); err != nil {
		t.Fatalf("prime id key: %v", err)
	}
	if _, err := store.GetByFingerprint(ctx, "t1", "payout|stripe|po_cache"); err != nil {
		t.Fatalf("prime fingerprint key: %v", err)
	}

	if _, _, err := store.InsertOrFetch(ctx, testIdentity()); err != nil {
		t.Fatalf("insert or fetch: %v", err)
	}

	if _, err := store.Get(ctx, "id-cache-1"); err != nil {
		t.Fatalf("get after write: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected write to invalidate id key, base get calls=%d", base.getCalls)
	}
	if _, err := store.GetByFingerprint(ctx, "t1", "payout|stripe|po_cache"); err != nil {
		t.Fatalf("fingerprint get after write: %v", err)
	}
	if base.fpCalls != 2 {
		t.Fatalf("expected write to invalidate fingerprint key, base fp calls=%d", base.fpCalls)
	}
}

func TestCachedIdentityStore_PropagatesNotFound(t *testing.T) {
	cacheService := newTestIdentityCacheService(t)
	base := &stubIdentityStore{getErr: core.ErrIdentityNotFound}
	store, err := NewCachedIdentityStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached identity store: %v", err)
	}

	_, err = store.Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrIdentityNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestIdentityCacheKeys_EscapeSegments(t *testing.T) {
	key, err := IdentityFingerprintCacheKey("t1", "bank|acct/1|2026-03-01|97250")
	if err != nil {
		t.Fatalf("fingerprint key: %v", err)
	}
	want := "go-reconcile::identity::v1::fp::t1::bank%7Cacct%2F1%7C2026-03-01%7C97250"
	if key != want {
		t.Fatalf("unexpected key %q, want %q", key, want)
	}

	if _, err := IdentityCacheKey(" "); err == nil {
		t.Fatalf("expected blank id rejection")
	}
}

func newTestIdentityCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
