package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// EventStore is the append-only raw event log. Insert reports whether the
// row was created; a natural-key collision returns the existing row with
// created=false and no error.
type EventStore interface {
	Insert(ctx context.Context, event RawEvent) (RawEvent, bool, error)
	Get(ctx context.Context, id string) (RawEvent, error)
	ListByIDs(ctx context.Context, ids []string) ([]RawEvent, error)
}

// IdentityStore owns identities and their raw-event links. InsertOrFetch is
// the single atomic insert-or-fetch on (tenant, fingerprint): concurrent
// resolution of the same fingerprint converges on one row.
type IdentityStore interface {
	InsertOrFetch(ctx context.Context, identity Identity) (Identity, bool, error)
	Get(ctx context.Context, id string) (Identity, error)
	GetByFingerprint(ctx context.Context, tenantID string, fingerprint string) (Identity, error)
	ListByKinds(ctx context.Context, tenantID string, kinds []IdentityKind, since time.Time) ([]Identity, error)
	Touch(ctx context.Context, ids []string, now time.Time) error
	InsertLink(ctx context.Context, link IdentityLink) (IdentityLink, error)
	ListLinks(ctx context.Context, identityID string) ([]IdentityLink, error)
}

// EdgeStore holds the typed relationship graph. InsertIfAbsent dedupes on
// (from, to, type) so re-running a matcher pass never duplicates evidence.
type EdgeStore interface {
	InsertIfAbsent(ctx context.Context, edge IdentityEdge) (IdentityEdge, bool, error)
	ListFrom(ctx context.Context, identityID string, types ...EdgeType) ([]IdentityEdge, error)
	ListTo(ctx context.Context, identityID string, types ...EdgeType) ([]IdentityEdge, error)
	ListByTenant(ctx context.Context, tenantID string) ([]IdentityEdge, error)
}

// LedgerStore writes recognized cash movements. InsertIfAbsent is keyed on
// the identity, not on recomputed content; that check is what makes repeated
// consolidation runs idempotent.
type LedgerStore interface {
	InsertIfAbsent(ctx context.Context, entry CashLedgerEntry) (CashLedgerEntry, bool, error)
	GetByIdentity(ctx context.Context, identityID string) (CashLedgerEntry, error)
	ListByTenant(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]CashLedgerEntry, error)
}

// ExceptionStore persists the open/resolve lifecycle. UpsertOpen updates
// context in place when an open exception with the same dedupe key exists.
type ExceptionStore interface {
	UpsertOpen(ctx context.Context, exception Exception) (Exception, bool, error)
	Get(ctx context.Context, id string) (Exception, error)
	MarkResolved(ctx context.Context, id string, resolvedBy string, now time.Time) (Exception, error)
	ListOpen(ctx context.Context, tenantID string, kind ExceptionKind) ([]Exception, error)
}

type ActivityStore interface {
	Append(ctx context.Context, entry ActivityEntry) error
	List(ctx context.Context, tenantID string, limit int) ([]ActivityEntry, error)
}

// IdentityFact is the matcher-facing projection of an identity: the
// identity row joined with the amounts, timing, and descriptors of its
// backing raw events.
type IdentityFact struct {
	Identity         Identity
	AmountMinor      int64
	GrossMinor       int64
	Currency         string
	OccurredAt       time.Time
	AccountRef       string
	Counterparty     string
	ParentExternalID string
	ExternalID       string
	SubType          string
	RawEventIDs      []string
	Sources          []EventSource
}

// FactReader loads matcher projections in bulk; implemented by the SQL
// store with a join over identities, links, and raw events.
type FactReader interface {
	ListFacts(ctx context.Context, tenantID string, kinds []IdentityKind, since time.Time) ([]IdentityFact, error)
	ListFactsByIDs(ctx context.Context, tenantID string, ids []string) ([]IdentityFact, error)
}

type StoreProvider interface {
	EventStore() EventStore
	IdentityStore() IdentityStore
	EdgeStore() EdgeStore
	LedgerStore() LedgerStore
	ExceptionStore() ExceptionStore
	ActivityStore() ActivityStore
	FactReader() FactReader
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type IngestBatchInput struct {
	TenantID string
	Events   []RawEvent
}

type RecordFailure struct {
	ExternalID string
	Reason     string
}

type IngestBatchResult struct {
	Stored       int
	Deduplicated int
	Failed       int
	Failures     []RecordFailure
	Links        []IdentityLink
}

type MatchResult struct {
	Edges      []IdentityEdge
	Exceptions []Exception
}

type ConsolidateInput struct {
	TenantID string
	Since    time.Time
}

type ConsolidateResult struct {
	Entries    []CashLedgerEntry
	Exceptions []Exception
	Skipped    int
	Failed     int
}

type ResolveExceptionInput struct {
	ExceptionID string
	ChosenEdges []IdentityEdge
	ResolvedBy  string
}

type ResolveExceptionResult struct {
	Exception   Exception
	Edges       []IdentityEdge
	Rescheduled []string
}

type PayoutSettlementState string

const (
	PayoutStateSettled   PayoutSettlementState = "settled"
	PayoutStateInTransit PayoutSettlementState = "in_transit"
	PayoutStateAmbiguous PayoutSettlementState = "ambiguous"
	PayoutStateAged      PayoutSettlementState = "aged"
)

type PayoutStatus struct {
	Identity     Identity
	State        PayoutSettlementState
	SettlementID string
	PostedAt     *time.Time
	AmountMinor  int64
	Currency     string
}

type PayoutStatusFilter struct {
	TenantID string
	From     time.Time
	To       time.Time
}

// IdentityProvenance is the full audit view of one identity: backing raw
// events, both edge directions, and the ledger entry when one exists.
type IdentityProvenance struct {
	Identity    Identity
	Links       []IdentityLink
	Events      []RawEvent
	EdgesOut    []IdentityEdge
	EdgesIn     []IdentityEdge
	LedgerEntry *CashLedgerEntry
}
