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

type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*ledgerEntryRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ledgerEntryRecord](db, ledgerEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ledger repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

// InsertIfAbsent is keyed on the identity's unique index, not on recomputed
// content. Replayed consolidation runs hit the index and keep the first
// entry, which is the idempotence guarantee downstream accounting relies on.
func (s *LedgerStore) InsertIfAbsent(ctx context.Context, entry core.CashLedgerEntry) (core.CashLedgerEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.CashLedgerEntry{}, false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if strings.TrimSpace(entry.IdentityID) == "" {
		return core.CashLedgerEntry{}, false, fmt.Errorf("sqlstore: ledger entry identity id is required")
	}
	if strings.TrimSpace(entry.TenantID) == "" {
		return core.CashLedgerEntry{}, false, core.ErrTenantRequired
	}

	record := newLedgerEntryRecord(entry, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByIdentity(ctx, record.IdentityID)
			if getErr != nil {
				return core.CashLedgerEntry{}, false, getErr
			}
			return existing, false, nil
		}
		return core.CashLedgerEntry{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *LedgerStore) GetByIdentity(ctx context.Context, identityID string) (core.CashLedgerEntry, error) {
	if s == nil || s.db == nil {
		return core.CashLedgerEntry{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record := &ledgerEntryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.identity_id = ?", strings.TrimSpace(identityID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.CashLedgerEntry{}, core.ErrLedgerEntryNotFound
		}
		return core.CashLedgerEntry{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) ListByTenant(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]core.CashLedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	records := []*ledgerEntryRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Order("posted_at ASC")
	if !from.IsZero() {
		query = query.Where("?TableAlias.posted_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("?TableAlias.posted_at <= ?", to.UTC())
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.CashLedgerEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
