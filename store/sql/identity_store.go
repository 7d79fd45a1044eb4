package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type IdentityStore struct {
	db       *bun.DB
	repo     repository.Repository[*identityRecord]
	linkRepo repository.Repository[*identityLinkRecord]
}

func NewIdentityStore(db *bun.DB) (*IdentityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*identityRecord](db, identityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid identity repository wiring: %w", err)
		}
	}
	linkRepo := repository.NewRepository[*identityLinkRecord](db, identityLinkHandlers())
	if validator, ok := linkRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid identity link repository wiring: %w", err)
		}
	}
	return &IdentityStore{db: db, repo: repo, linkRepo: linkRepo}, nil
}

// InsertOrFetch races the insert against the (tenant, fingerprint) unique
// index. Losers of the race read back the winner's row, so concurrent
// resolution of one fingerprint converges on a single identity.
func (s *IdentityStore) InsertOrFetch(ctx context.Context, identity core.Identity) (core.Identity, bool, error) {
	if s == nil || s.db == nil {
		return core.Identity{}, false, fmt.Errorf("sqlstore: identity store is not configured")
	}
	if strings.TrimSpace(identity.TenantID) == "" {
		return core.Identity{}, false, core.ErrTenantRequired
	}
	if strings.TrimSpace(identity.Fingerprint) == "" {
		return core.Identity{}, false, fmt.Errorf("sqlstore: identity fingerprint is required")
	}

	record := newIdentityRecord(identity, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByFingerprint(ctx, record.TenantID, record.Fingerprint)
			if getErr != nil {
				return core.Identity{}, false, getErr
			}
			return existing, false, nil
		}
		return core.Identity{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *IdentityStore) Get(ctx context.Context, id string) (core.Identity, error) {
	if s == nil || s.db == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: identity store is not configured")
	}
	record := &identityRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Identity{}, core.ErrIdentityNotFound
		}
		return core.Identity{}, err
	}
	return record.toDomain(), nil
}

func (s *IdentityStore) GetByFingerprint(ctx context.Context, tenantID string, fingerprint string) (core.Identity, error) {
	if s == nil || s.db == nil {
		return core.Identity{}, fmt.Errorf("sqlstore: identity store is not configured")
	}
	record := &identityRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.fingerprint = ?", strings.TrimSpace(fingerprint)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Identity{}, core.ErrIdentityNotFound
		}
		return core.Identity{}, err
	}
	return record.toDomain(), nil
}

func (s *IdentityStore) ListByKinds(ctx context.Context, tenantID string, kinds []core.IdentityKind, since time.Time) ([]core.Identity, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: identity store is not configured")
	}
	records := []*identityRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Order("created_at ASC")
	if len(kinds) > 0 {
		values := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			values = append(values, string(kind))
		}
		query = query.Where("?TableAlias.kind IN (?)", bun.In(values))
	}
	if !since.IsZero() {
		query = query.Where("?TableAlias.updated_at >= ?", since.UTC())
	}

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Identity, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Touch bumps updated_at so touched identities fall back inside incremental
// matcher and consolidation windows.
func (s *IdentityStore) Touch(ctx context.Context, ids []string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: identity store is not configured")
	}
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if value := strings.TrimSpace(id); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.NewUpdate().
		Model((*identityRecord)(nil)).
		Set("updated_at = ?", now.UTC()).
		Where("id IN (?)", bun.In(trimmed)).
		Exec(ctx)
	return err
}

func (s *IdentityStore) InsertLink(ctx context.Context, link core.IdentityLink) (core.IdentityLink, error) {
	if s == nil || s.db == nil {
		return core.IdentityLink{}, fmt.Errorf("sqlstore: identity store is not configured")
	}
	if strings.TrimSpace(link.IdentityID) == "" || strings.TrimSpace(link.RawEventID) == "" {
		return core.IdentityLink{}, fmt.Errorf("sqlstore: identity link needs identity and raw event ids")
	}

	record := newIdentityLinkRecord(link, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getLink(ctx, record.IdentityID, record.RawEventID)
			if getErr != nil {
				return core.IdentityLink{}, getErr
			}
			return existing, nil
		}
		return core.IdentityLink{}, err
	}
	return record.toDomain(), nil
}

func (s *IdentityStore) ListLinks(ctx context.Context, identityID string) ([]core.IdentityLink, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: identity store is not configured")
	}
	records := []*identityLinkRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.identity_id = ?", strings.TrimSpace(identityID)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.IdentityLink, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *IdentityStore) getLink(ctx context.Context, identityID, rawEventID string) (core.IdentityLink, error) {
	record := &identityLinkRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.identity_id = ?", identityID).
		Where("?TableAlias.raw_event_id = ?", rawEventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.IdentityLink{}, err
	}
	return record.toDomain(), nil
}
