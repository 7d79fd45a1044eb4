package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type rawEventRecord struct {
	bun.BaseModel `bun:"table:reconcile_raw_events,alias:rre"`

	ID               string         `bun:"id,pk"`
	TenantID         string         `bun:"tenant_id,notnull"`
	Source           string         `bun:"source,notnull"`
	Kind             string         `bun:"kind,notnull"`
	ExternalID       string         `bun:"external_id,notnull"`
	OccurredAt       time.Time      `bun:"occurred_at,notnull"`
	AmountMinor      int64          `bun:"amount_minor,notnull"`
	Currency         string         `bun:"currency,notnull"`
	AccountRef       string         `bun:"account_ref"`
	Counterparty     string         `bun:"counterparty"`
	ParentExternalID string         `bun:"parent_external_id"`
	SubType          string         `bun:"sub_type"`
	Payload          map[string]any `bun:"payload,type:jsonb"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type identityRecord struct {
	bun.BaseModel `bun:"table:reconcile_identities,alias:ri"`

	ID            string    `bun:"id,pk"`
	TenantID      string    `bun:"tenant_id,notnull"`
	Fingerprint   string    `bun:"fingerprint,notnull"`
	Kind          string    `bun:"kind,notnull"`
	LowConfidence bool      `bun:"low_confidence,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type identityLinkRecord struct {
	bun.BaseModel `bun:"table:reconcile_identity_links,alias:ril"`

	ID         string    `bun:"id,pk"`
	IdentityID string    `bun:"identity_id,notnull"`
	RawEventID string    `bun:"raw_event_id,notnull"`
	Confidence float64   `bun:"confidence,notnull"`
	Reason     string    `bun:"reason"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type identityEdgeRecord struct {
	bun.BaseModel `bun:"table:reconcile_identity_edges,alias:rie"`

	ID             string    `bun:"id,pk"`
	TenantID       string    `bun:"tenant_id,notnull"`
	FromIdentityID string    `bun:"from_identity_id,notnull"`
	ToIdentityID   string    `bun:"to_identity_id,notnull"`
	EdgeType       string    `bun:"edge_type,notnull"`
	Confidence     float64   `bun:"confidence,notnull"`
	Origin         string    `bun:"origin,notnull"`
	Reason         string    `bun:"reason"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type ledgerEntryRecord struct {
	bun.BaseModel `bun:"table:reconcile_ledger_entries,alias:rle"`

	ID                string         `bun:"id,pk"`
	TenantID          string         `bun:"tenant_id,notnull"`
	IdentityID        string         `bun:"identity_id,notnull"`
	PostedAt          time.Time      `bun:"posted_at,notnull"`
	Direction         string         `bun:"direction,notnull"`
	AmountMinor       int64          `bun:"amount_minor,notnull"`
	Currency          string         `bun:"currency,notnull"`
	ClassificationKey string         `bun:"classification_key"`
	Provenance        map[string]any `bun:"provenance,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type exceptionRecord struct {
	bun.BaseModel `bun:"table:reconcile_exceptions,alias:rex"`

	ID         string         `bun:"id,pk"`
	TenantID   string         `bun:"tenant_id,notnull"`
	Kind       string         `bun:"kind,notnull"`
	Status     string         `bun:"status,notnull"`
	DedupeKey  string         `bun:"dedupe_key,notnull"`
	Context    map[string]any `bun:"context,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt *time.Time     `bun:"resolved_at,nullzero"`
	ResolvedBy string         `bun:"resolved_by"`
}

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:reconcile_activity_entries,alias:rae"`

	ID         string         `bun:"id,pk"`
	TenantID   string         `bun:"tenant_id,notnull"`
	Actor      string         `bun:"actor,notnull"`
	Action     string         `bun:"action,notnull"`
	IdentityID string         `bun:"identity_id"`
	Status     string         `bun:"status,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
