package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const identityCacheKeyPrefix = "go-reconcile::identity::v1"

// CachedIdentityStore fronts identity point reads with a cache. Identities
// are hot during matching (every edge endpoint resolves through Get) and
// nearly immutable, so reads cache aggressively and every write path
// invalidates both key shapes.
type CachedIdentityStore struct {
	base  core.IdentityStore
	cache repositorycache.CacheService
}

func NewCachedIdentityStore(
	base core.IdentityStore,
	cacheService repositorycache.CacheService,
) (*CachedIdentityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base identity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: identity cache service is required")
	}
	return &CachedIdentityStore{base: base, cache: cacheService}, nil
}

// IdentityCacheKey returns the deterministic cache key contract for identity
// reads by id: go-reconcile::identity::v1::id::<identity_id> with the id
// segment URL-path escaped.
func IdentityCacheKey(identityID string) (string, error) {
	trimmed := strings.TrimSpace(identityID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: identity id is required")
	}
	return identityCacheKeyPrefix + "::id::" + url.PathEscape(trimmed), nil
}

// IdentityFingerprintCacheKey returns the key contract for fingerprint
// lookups: go-reconcile::identity::v1::fp::<tenant>::<fingerprint>.
func IdentityFingerprintCacheKey(tenantID, fingerprint string) (string, error) {
	tenant := strings.TrimSpace(tenantID)
	print := strings.TrimSpace(fingerprint)
	if tenant == "" || print == "" {
		return "", fmt.Errorf("sqlstore: tenant id and fingerprint are required")
	}
	return identityCacheKeyPrefix + "::fp::" + url.PathEscape(tenant) + "::" + url.PathEscape(print), nil
}

func (s *CachedIdentityStore) InsertOrFetch(ctx context.Context, identity core.Identity) (core.Identity, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Identity{}, false, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	stored, created, err := s.base.InsertOrFetch(ctx, identity)
	if err != nil {
		return core.Identity{}, false, err
	}
	if err := s.invalidate(ctx, stored); err != nil {
		return core.Identity{}, false, err
	}
	return stored, created, nil
}

func (s *CachedIdentityStore) Get(ctx context.Context, id string) (core.Identity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	cacheKey, err := IdentityCacheKey(id)
	if err != nil {
		return core.Identity{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Identity, error) {
		return s.base.Get(ctx, id)
	})
}

func (s *CachedIdentityStore) GetByFingerprint(ctx context.Context, tenantID string, fingerprint string) (core.Identity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	cacheKey, err := IdentityFingerprintCacheKey(tenantID, fingerprint)
	if err != nil {
		return core.Identity{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Identity, error) {
		return s.base.GetByFingerprint(ctx, tenantID, fingerprint)
	})
}

func (s *CachedIdentityStore) ListByKinds(ctx context.Context, tenantID string, kinds []core.IdentityKind, since time.Time) ([]core.Identity, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	return s.base.ListByKinds(ctx, tenantID, kinds, since)
}

func (s *CachedIdentityStore) Touch(ctx context.Context, ids []string, now time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	if err := s.base.Touch(ctx, ids, now); err != nil {
		return err
	}
	for _, id := range ids {
		identity, err := s.base.Get(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrIdentityNotFound) {
				continue
			}
			return err
		}
		if err := s.invalidate(ctx, identity); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedIdentityStore) InsertLink(ctx context.Context, link core.IdentityLink) (core.IdentityLink, error) {
	if s == nil || s.base == nil {
		return core.IdentityLink{}, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	return s.base.InsertLink(ctx, link)
}

func (s *CachedIdentityStore) ListLinks(ctx context.Context, identityID string) ([]core.IdentityLink, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached identity store is not configured")
	}
	return s.base.ListLinks(ctx, identityID)
}

func (s *CachedIdentityStore) invalidate(ctx context.Context, identity core.Identity) error {
	idKey, err := IdentityCacheKey(identity.ID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, idKey); err != nil {
		return err
	}
	fingerprintKey, err := IdentityFingerprintCacheKey(identity.TenantID, identity.Fingerprint)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, fingerprintKey)
}

var _ core.IdentityStore = (*CachedIdentityStore)(nil)
