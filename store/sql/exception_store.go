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

type ExceptionStore struct {
	db   *bun.DB
	repo repository.Repository[*exceptionRecord]
}

func NewExceptionStore(db *bun.DB) (*ExceptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*exceptionRecord](db, exceptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid exception repository wiring: %w", err)
		}
	}
	return &ExceptionStore{db: db, repo: repo}, nil
}

// UpsertOpen refreshes the context of an open exception with the same dedupe
// key instead of stacking a second row. Resolved rows never block a fresh
// open one; the partial unique index only covers status = 'open'.
func (s *ExceptionStore) UpsertOpen(ctx context.Context, exception core.Exception) (core.Exception, bool, error) {
	if s == nil || s.db == nil {
		return core.Exception{}, false, fmt.Errorf("sqlstore: exception store is not configured")
	}
	if strings.TrimSpace(exception.TenantID) == "" {
		return core.Exception{}, false, core.ErrTenantRequired
	}
	if strings.TrimSpace(exception.DedupeKey) == "" {
		return core.Exception{}, false, fmt.Errorf("sqlstore: exception dedupe key is required")
	}

	now := time.Now().UTC()
	record := newExceptionRecord(exception, now)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Status = string(core.ExceptionStatusOpen)
	record.ResolvedAt = nil
	record.ResolvedBy = ""

	var out core.Exception
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findOpenExceptionTx(ctx, tx, record.TenantID, record.DedupeKey)
		if err != nil {
			return err
		}
		if existing == nil {
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					existing, err = findOpenExceptionTx(ctx, tx, record.TenantID, record.DedupeKey)
					if err != nil {
						return err
					}
					if existing == nil {
						return insertErr
					}
				} else {
					return insertErr
				}
			} else {
				out = record.toDomain()
				created = true
				return nil
			}
		}

		existing.Context = record.Context
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(existing).Where("id = ?", existing.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Exception{}, false, err
	}
	return out, created, nil
}

func (s *ExceptionStore) Get(ctx context.Context, id string) (core.Exception, error) {
	if s == nil || s.db == nil {
		return core.Exception{}, fmt.Errorf("sqlstore: exception store is not configured")
	}
	record := &exceptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Exception{}, core.ErrExceptionNotFound
		}
		return core.Exception{}, err
	}
	return record.toDomain(), nil
}

func (s *ExceptionStore) MarkResolved(ctx context.Context, id string, resolvedBy string, now time.Time) (core.Exception, error) {
	if s == nil || s.db == nil {
		return core.Exception{}, fmt.Errorf("sqlstore: exception store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.Exception{}, core.ErrExceptionNotFound
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	var out core.Exception
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &exceptionRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", trimmedID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrExceptionNotFound
			}
			return err
		}
		if record.Status == string(core.ExceptionStatusResolved) {
			return core.ErrExceptionAlreadyResolved
		}

		record.Status = string(core.ExceptionStatusResolved)
		record.ResolvedAt = &now
		record.ResolvedBy = strings.TrimSpace(resolvedBy)
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Exception{}, err
	}
	return out, nil
}

func (s *ExceptionStore) ListOpen(ctx context.Context, tenantID string, kind core.ExceptionKind) ([]core.Exception, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: exception store is not configured")
	}
	records := []*exceptionRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.status = ?", string(core.ExceptionStatusOpen)).
		Order("created_at ASC")
	if strings.TrimSpace(string(kind)) != "" {
		query = query.Where("?TableAlias.kind = ?", string(kind))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Exception, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findOpenExceptionTx(ctx context.Context, tx bun.Tx, tenantID, dedupeKey string) (*exceptionRecord, error) {
	record := &exceptionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.dedupe_key = ?", dedupeKey).
		Where("?TableAlias.status = ?", string(core.ExceptionStatusOpen)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
