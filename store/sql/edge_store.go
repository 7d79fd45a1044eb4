package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EdgeStore struct {
	db   *bun.DB
	repo repository.Repository[*identityEdgeRecord]
}

func NewEdgeStore(db *bun.DB) (*EdgeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*identityEdgeRecord](db, identityEdgeHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid identity edge repository wiring: %w", err)
		}
	}
	return &EdgeStore{db: db, repo: repo}, nil
}

// InsertIfAbsent dedupes on the (from, to, type) unique index so matcher
// reruns never duplicate evidence.
func (s *EdgeStore) InsertIfAbsent(ctx context.Context, edge core.IdentityEdge) (core.IdentityEdge, bool, error) {
	if s == nil || s.db == nil {
		return core.IdentityEdge{}, false, fmt.Errorf("sqlstore: edge store is not configured")
	}
	if err := edge.Validate(); err != nil {
		return core.IdentityEdge{}, false, err
	}

	record := newIdentityEdgeRecord(edge, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getByEndpoints(ctx, record.FromIdentityID, record.ToIdentityID, record.EdgeType)
			if getErr != nil {
				return core.IdentityEdge{}, false, getErr
			}
			return existing, false, nil
		}
		return core.IdentityEdge{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *EdgeStore) ListFrom(ctx context.Context, identityID string, types ...core.EdgeType) ([]core.IdentityEdge, error) {
	return s.list(ctx, "from_identity_id", identityID, types)
}

func (s *EdgeStore) ListTo(ctx context.Context, identityID string, types ...core.EdgeType) ([]core.IdentityEdge, error) {
	return s.list(ctx, "to_identity_id", identityID, types)
}

func (s *EdgeStore) ListByTenant(ctx context.Context, tenantID string) ([]core.IdentityEdge, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: edge store is not configured")
	}
	records := []*identityEdgeRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return edgesToDomain(records), nil
}

func (s *EdgeStore) list(ctx context.Context, column string, identityID string, types []core.EdgeType) ([]core.IdentityEdge, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: edge store is not configured")
	}
	records := []*identityEdgeRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias."+column+" = ?", strings.TrimSpace(identityID)).
		Order("created_at ASC")
	if len(types) > 0 {
		values := make([]string, 0, len(types))
		for _, edgeType := range types {
			values = append(values, string(edgeType))
		}
		query = query.Where("?TableAlias.edge_type IN (?)", bun.In(values))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return edgesToDomain(records), nil
}

func (s *EdgeStore) getByEndpoints(ctx context.Context, fromID, toID, edgeType string) (core.IdentityEdge, error) {
	record := &identityEdgeRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.from_identity_id = ?", fromID).
		Where("?TableAlias.to_identity_id = ?", toID).
		Where("?TableAlias.edge_type = ?", edgeType).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.IdentityEdge{}, err
	}
	return record.toDomain(), nil
}

func edgesToDomain(records []*identityEdgeRecord) []core.IdentityEdge {
	out := make([]core.IdentityEdge, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
