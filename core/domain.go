package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidEventSource             = errors.New("core: invalid event source")
	ErrInvalidEventKind               = errors.New("core: invalid event kind")
	ErrInvalidIdentityKind            = errors.New("core: invalid identity kind")
	ErrInvalidEdgeType                = errors.New("core: invalid edge type")
	ErrInvalidExceptionKind           = errors.New("core: invalid exception kind")
	ErrInvalidExceptionTransition     = errors.New("core: invalid exception status transition")
	ErrMalformedEvent                 = errors.New("core: malformed raw event")
	ErrIdentityNotFound               = errors.New("core: identity not found")
	ErrEventNotFound                  = errors.New("core: raw event not found")
	ErrExceptionNotFound              = errors.New("core: exception not found")
	ErrExceptionAlreadyResolved       = errors.New("core: exception already resolved")
	ErrLedgerEntryExists              = errors.New("core: ledger entry already exists for identity")
	ErrLedgerEntryNotFound            = errors.New("core: ledger entry not found")
	ErrCurrencyMismatch               = errors.New("core: currency mismatch")
	ErrIncompatibleIdentityKind       = errors.New("core: fingerprint collision with incompatible kind")
	ErrTenantRequired                 = errors.New("core: tenant id is required")
	ErrConsolidationWatermarkRequired = errors.New("core: consolidation watermark is required")
)

type EventSource string

const (
	EventSourceBank      EventSource = "bank"
	EventSourceProcessor EventSource = "processor"
	EventSourceOps       EventSource = "ops"
)

type EventKind string

const (
	EventKindBankTxn    EventKind = "bank_txn"
	EventKindPayout     EventKind = "payout"
	EventKindBalanceTxn EventKind = "balance_txn"
	EventKindOpsPayment EventKind = "ops_payment"
	EventKindOpsInvoice EventKind = "ops_invoice"
)

// Balance-transaction sub-types as reported by the processor, plus the
// "paid" marker operational systems attach to invoices/payments.
const (
	SubTypeCharge = "charge"
	SubTypeFee    = "fee"
	SubTypeRefund = "refund"
	SubTypePayout = "payout"
	SubTypePaid   = "paid"
)

// RawEvent is one immutable inbound observation from a connector. It is
// unique per (tenant, source, kind, external id); re-ingesting the same
// tuple is a dedupe no-op, never a duplicate row.
type RawEvent struct {
	ID               string
	TenantID         string
	Source           EventSource
	Kind             EventKind
	ExternalID       string
	OccurredAt       time.Time
	AmountMinor      int64
	Currency         string
	AccountRef       string
	Counterparty     string
	ParentExternalID string
	SubType          string
	Payload          map[string]any
	CreatedAt        time.Time
}

// NaturalKey is the ingestion idempotence key.
func (e RawEvent) NaturalKey() string {
	return strings.Join([]string{
		strings.TrimSpace(e.TenantID),
		strings.TrimSpace(strings.ToLower(string(e.Source))),
		strings.TrimSpace(strings.ToLower(string(e.Kind))),
		strings.TrimSpace(e.ExternalID),
	}, "::")
}

func (e RawEvent) Validate() error {
	if strings.TrimSpace(e.TenantID) == "" {
		return ErrTenantRequired
	}
	switch e.Source {
	case EventSourceBank, EventSourceProcessor, EventSourceOps:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventSource, e.Source)
	}
	switch e.Kind {
	case EventKindBankTxn, EventKindPayout, EventKindBalanceTxn, EventKindOpsPayment, EventKindOpsInvoice:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventKind, e.Kind)
	}
	if strings.TrimSpace(e.ExternalID) == "" {
		return fmt.Errorf("%w: external id is required", ErrMalformedEvent)
	}
	if len(strings.TrimSpace(e.Currency)) != 3 {
		return fmt.Errorf("%w: currency %q", ErrMalformedEvent, e.Currency)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrMalformedEvent)
	}
	// Zero amounts are malformed everywhere except bank records, where a
	// zero-amount memo line degrades to a low-confidence fingerprint instead.
	if e.AmountMinor == 0 && e.Kind != EventKindBankTxn {
		return fmt.Errorf("%w: zero amount", ErrMalformedEvent)
	}
	return nil
}

type IdentityKind string

const (
	IdentityKindSettlement IdentityKind = "settlement"
	IdentityKindPayout     IdentityKind = "payout"
	IdentityKindCharge     IdentityKind = "charge"
	IdentityKindFee        IdentityKind = "fee"
	IdentityKindRefund     IdentityKind = "refund"
	IdentityKindInvoice    IdentityKind = "invoice"
	IdentityKindPayment    IdentityKind = "payment"
)

func (k IdentityKind) Validate() error {
	switch k {
	case IdentityKindSettlement, IdentityKindPayout, IdentityKindCharge,
		IdentityKindFee, IdentityKindRefund, IdentityKindInvoice, IdentityKindPayment:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidIdentityKind, k)
	}
}

// Identity is the canonical node for one real-world financial event. It is
// unique per (tenant, fingerprint) and may be backed by raw events from
// several sources. Identities are never deleted; linking more raw events is
// the only mutation.
type Identity struct {
	ID            string
	TenantID      string
	Fingerprint   string
	Kind          IdentityKind
	LowConfidence bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IdentityLink associates a raw event with the identity it represents. The
// reason is a human-readable audit note, not machine state.
type IdentityLink struct {
	ID         string
	IdentityID string
	RawEventID string
	Confidence float64
	Reason     string
	CreatedAt  time.Time
}

type EdgeType string

const (
	EdgeTypeSettles    EdgeType = "SETTLES"
	EdgeTypeComposedOf EdgeType = "COMPOSED_OF"
	EdgeTypeAppliesTo  EdgeType = "APPLIES_TO"
)

func (t EdgeType) Validate() error {
	switch t {
	case EdgeTypeSettles, EdgeTypeComposedOf, EdgeTypeAppliesTo:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEdgeType, t)
	}
}

type EdgeOrigin string

const (
	EdgeOriginMatcher    EdgeOrigin = "matcher"
	EdgeOriginResolution EdgeOrigin = "resolution"
)

// IdentityEdge is a directed, typed relationship between identities. Edges
// are additive evidence: they are never deleted, only superseded by new
// edges written during exception resolution.
type IdentityEdge struct {
	ID             string
	TenantID       string
	FromIdentityID string
	ToIdentityID   string
	Type           EdgeType
	Confidence     float64
	Origin         EdgeOrigin
	Reason         string
	CreatedAt      time.Time
}

func (e IdentityEdge) Validate() error {
	if strings.TrimSpace(e.TenantID) == "" {
		return ErrTenantRequired
	}
	if strings.TrimSpace(e.FromIdentityID) == "" || strings.TrimSpace(e.ToIdentityID) == "" {
		return fmt.Errorf("%w: edge endpoints are required", ErrInvalidEdgeType)
	}
	return e.Type.Validate()
}

type LedgerDirection string

const (
	LedgerDirectionInflow  LedgerDirection = "inflow"
	LedgerDirectionOutflow LedgerDirection = "outflow"
)

// LedgerProvenance is the typed audit payload justifying a ledger entry.
// Additive evolution only: new fields may be appended, existing fields keep
// their meaning across schema versions.
type LedgerProvenance struct {
	SchemaVersion  int      `json:"schema_version"`
	SettlesEdgeID  string   `json:"settles_edge_id,omitempty"`
	CompositionIDs []string `json:"composition_edge_ids,omitempty"`
	RawEventIDs    []string `json:"raw_event_ids,omitempty"`
	MatcherReasons []string `json:"matcher_reasons,omitempty"`
}

// CashLedgerEntry is one recognized, non-duplicated cash movement. At most
// one entry exists per identity; the amount and posted time always come from
// the bank-recognized record, never from summed processor parts. Entries are
// immutable; corrections are new compensating entries.
type CashLedgerEntry struct {
	ID                string
	TenantID          string
	IdentityID        string
	PostedAt          time.Time
	Direction         LedgerDirection
	AmountMinor       int64
	Currency          string
	ClassificationKey string
	Provenance        LedgerProvenance
	CreatedAt         time.Time
}

type ExceptionKind string

const (
	ExceptionKindAmbiguousMatch ExceptionKind = "ambiguous_match"
	ExceptionKindNoMatch        ExceptionKind = "no_match"
	ExceptionKindGhostRecord    ExceptionKind = "ghost_record"
	ExceptionKindTimingDrift    ExceptionKind = "timing_drift"
)

func (k ExceptionKind) Validate() error {
	switch k {
	case ExceptionKindAmbiguousMatch, ExceptionKindNoMatch, ExceptionKindGhostRecord, ExceptionKindTimingDrift:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExceptionKind, k)
	}
}

type ExceptionStatus string

const (
	ExceptionStatusOpen     ExceptionStatus = "open"
	ExceptionStatusResolved ExceptionStatus = "resolved"
)

// ExceptionCandidate is one scored option captured at the matcher decision
// point, so review never has to re-derive the ambiguity.
type ExceptionCandidate struct {
	IdentityID  string   `json:"identity_id,omitempty"`
	IdentityIDs []string `json:"identity_ids,omitempty"`
	Score       float64  `json:"score"`
	Reason      string   `json:"reason,omitempty"`
}

// ExceptionContext is the typed context payload for an exception. Additive
// evolution only, versioned like LedgerProvenance.
type ExceptionContext struct {
	SchemaVersion     int                  `json:"schema_version"`
	SubjectIdentityID string               `json:"subject_identity_id"`
	Candidates        []ExceptionCandidate `json:"candidates,omitempty"`
	Detail            string               `json:"detail,omitempty"`
	ObservedAt        time.Time            `json:"observed_at"`
}

// Exception is an open question raised by a matcher or the consolidator.
// Raising the same dedupe key while one is open updates context instead of
// creating a duplicate. Resolution never deletes the record.
type Exception struct {
	ID         string
	TenantID   string
	Kind       ExceptionKind
	Status     ExceptionStatus
	DedupeKey  string
	Context    ExceptionContext
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

func (e *Exception) TransitionTo(status ExceptionStatus, resolvedBy string, now time.Time) error {
	if e == nil {
		return nil
	}
	if e.Status == status {
		e.UpdatedAt = now
		return nil
	}
	if !exceptionTransitionAllowed(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidExceptionTransition, e.Status, status)
	}
	e.Status = status
	e.UpdatedAt = now
	if status == ExceptionStatusResolved {
		resolvedAt := now
		e.ResolvedAt = &resolvedAt
		e.ResolvedBy = strings.TrimSpace(resolvedBy)
	}
	return nil
}

func exceptionTransitionAllowed(current, next ExceptionStatus) bool {
	allowed := map[ExceptionStatus]map[ExceptionStatus]struct{}{
		ExceptionStatusOpen: {
			ExceptionStatusResolved: {},
		},
		ExceptionStatusResolved: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// ExceptionDedupeKey builds the open-exception dedupe key for a subject
// identity at a given decision point.
func ExceptionDedupeKey(kind ExceptionKind, subjectIdentityID string) string {
	return string(kind) + "::" + strings.TrimSpace(subjectIdentityID)
}

// DirectionForAmount derives the ledger direction from a bank-reported
// signed amount (credits positive).
func DirectionForAmount(amountMinor int64) LedgerDirection {
	if amountMinor < 0 {
		return LedgerDirectionOutflow
	}
	return LedgerDirectionInflow
}

type ActivityStatus string

const (
	ActivityStatusOK    ActivityStatus = "ok"
	ActivityStatusWarn  ActivityStatus = "warn"
	ActivityStatusError ActivityStatus = "error"
)

// ActivityEntry is one audit row describing a matcher or consolidator
// decision, kept so the review surface can explain edges without re-running
// the matcher.
type ActivityEntry struct {
	ID         string
	TenantID   string
	Actor      string
	Action     string
	IdentityID string
	Status     ActivityStatus
	Metadata   map[string]any
	CreatedAt  time.Time
}
