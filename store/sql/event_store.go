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

type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*rawEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rawEventRecord](db, rawEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid raw event repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

// Insert appends the event. A natural-key collision on
// (tenant, source, kind, external_id) returns the stored row instead.
func (s *EventStore) Insert(ctx context.Context, event core.RawEvent) (core.RawEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.RawEvent{}, false, fmt.Errorf("sqlstore: event store is not configured")
	}
	if err := event.Validate(); err != nil {
		return core.RawEvent{}, false, err
	}

	record := newRawEventRecord(event, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getByNaturalKey(ctx, record.TenantID, record.Source, record.Kind, record.ExternalID)
			if getErr != nil {
				return core.RawEvent{}, false, getErr
			}
			return existing, false, nil
		}
		return core.RawEvent{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.RawEvent, error) {
	if s == nil || s.db == nil {
		return core.RawEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &rawEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.RawEvent{}, core.ErrEventNotFound
		}
		return core.RawEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) ListByIDs(ctx context.Context, ids []string) ([]core.RawEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if value := strings.TrimSpace(id); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	if len(trimmed) == 0 {
		return nil, nil
	}
	records := []*rawEventRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(trimmed)).
		Order("occurred_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.RawEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EventStore) getByNaturalKey(ctx context.Context, tenantID, source, kind, externalID string) (core.RawEvent, error) {
	record := &rawEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.source = ?", source).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.RawEvent{}, core.ErrEventNotFound
		}
		return core.RawEvent{}, err
	}
	return record.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
