package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"
	"github.com/uptrace/bun"
)

// FactReader builds the matcher-facing projection: each identity joined with
// the amounts, timing, and descriptors of its backing raw events. The join
// runs in Go over three indexed selects rather than one wide SQL join, which
// keeps the per-dialect SQL trivial.
type FactReader struct {
	db *bun.DB
}

func NewFactReader(db *bun.DB) (*FactReader, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &FactReader{db: db}, nil
}

func (r *FactReader) ListFacts(ctx context.Context, tenantID string, kinds []core.IdentityKind, since time.Time) ([]core.IdentityFact, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("sqlstore: fact reader is not configured")
	}
	identities := []*identityRecord{}
	query := r.db.NewSelect().
		Model(&identities).
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
	return r.assemble(ctx, identities)
}

func (r *FactReader) ListFactsByIDs(ctx context.Context, tenantID string, ids []string) ([]core.IdentityFact, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("sqlstore: fact reader is not configured")
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
	identities := []*identityRecord{}
	err := r.db.NewSelect().
		Model(&identities).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.id IN (?)", bun.In(trimmed)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, identities)
}

func (r *FactReader) assemble(ctx context.Context, identities []*identityRecord) ([]core.IdentityFact, error) {
	if len(identities) == 0 {
		return nil, nil
	}

	identityIDs := make([]string, 0, len(identities))
	for _, identity := range identities {
		identityIDs = append(identityIDs, identity.ID)
	}
	links := []*identityLinkRecord{}
	err := r.db.NewSelect().
		Model(&links).
		Where("?TableAlias.identity_id IN (?)", bun.In(identityIDs)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	eventIDsByIdentity := map[string][]string{}
	eventIDs := make([]string, 0, len(links))
	for _, link := range links {
		eventIDsByIdentity[link.IdentityID] = append(eventIDsByIdentity[link.IdentityID], link.RawEventID)
		eventIDs = append(eventIDs, link.RawEventID)
	}

	eventsByID := map[string]*rawEventRecord{}
	if len(eventIDs) > 0 {
		events := []*rawEventRecord{}
		err = r.db.NewSelect().
			Model(&events).
			Where("?TableAlias.id IN (?)", bun.In(eventIDs)).
			Scan(ctx)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			eventsByID[event.ID] = event
		}
	}

	out := make([]core.IdentityFact, 0, len(identities))
	for _, identity := range identities {
		fact := core.IdentityFact{Identity: identity.toDomain()}
		backing := make([]*rawEventRecord, 0, len(eventIDsByIdentity[identity.ID]))
		for _, eventID := range eventIDsByIdentity[identity.ID] {
			if event, ok := eventsByID[eventID]; ok {
				backing = append(backing, event)
				fact.RawEventIDs = append(fact.RawEventIDs, event.ID)
			}
		}
		projectFact(&fact, core.IdentityKind(identity.Kind), backing)
		out = append(out, fact)
	}
	return out, nil
}

// projectFact fills the scalar projection from the representative backing
// event for the identity's kind, falling back to the earliest event when no
// kind-specific record exists yet.
func projectFact(fact *core.IdentityFact, kind core.IdentityKind, backing []*rawEventRecord) {
	if len(backing) == 0 {
		return
	}
	representative := backing[0]
	wanted := representativeEventKind(kind)
	for _, event := range backing {
		if event.Kind == string(wanted) {
			representative = event
			break
		}
	}

	fact.AmountMinor = representative.AmountMinor
	fact.Currency = representative.Currency
	fact.OccurredAt = representative.OccurredAt
	fact.AccountRef = representative.AccountRef
	fact.Counterparty = representative.Counterparty
	fact.ParentExternalID = representative.ParentExternalID
	fact.ExternalID = representative.ExternalID
	fact.SubType = representative.SubType
	fact.GrossMinor = grossMinor(representative, kind)

	seen := map[core.EventSource]struct{}{}
	for _, event := range backing {
		source := core.EventSource(event.Source)
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		fact.Sources = append(fact.Sources, source)
	}
	sort.Slice(fact.Sources, func(i, j int) bool { return fact.Sources[i] < fact.Sources[j] })
}

func representativeEventKind(kind core.IdentityKind) core.EventKind {
	switch kind {
	case core.IdentityKindPayout:
		return core.EventKindPayout
	case core.IdentityKindSettlement:
		return core.EventKindBankTxn
	case core.IdentityKindCharge, core.IdentityKindFee, core.IdentityKindRefund:
		return core.EventKindBalanceTxn
	case core.IdentityKindPayment:
		return core.EventKindOpsPayment
	case core.IdentityKindInvoice:
		return core.EventKindOpsInvoice
	default:
		return ""
	}
}

// grossMinor prefers the provider-reported gross from the payout payload;
// payouts without one use the payout amount itself.
func grossMinor(event *rawEventRecord, kind core.IdentityKind) int64 {
	if value, ok := payloadInt64(event.Payload, "gross_minor"); ok {
		return value
	}
	if kind == core.IdentityKindPayout {
		return event.AmountMinor
	}
	return 0
}

func payloadInt64(payload map[string]any, key string) (int64, bool) {
	if len(payload) == 0 {
		return 0, false
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case float64:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
