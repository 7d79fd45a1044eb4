package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExceptionRaiser is the slice of the exception manager the consolidator
// and matcher passes need: raise-or-update, never resolve.
type ExceptionRaiser interface {
	Raise(ctx context.Context, tenantID string, proposal ExceptionProposal) (Exception, bool, error)
}

// Consolidator walks the identity graph and emits exactly one ledger entry
// per bank-recognized cash movement. It is safe to re-run: the ledger
// store's existence check on the identity makes every pass idempotent.
type Consolidator struct {
	facts      FactReader
	edges      EdgeStore
	ledger     LedgerStore
	exceptions ExceptionRaiser
	now        func() time.Time
}

func NewConsolidator(
	facts FactReader,
	edges EdgeStore,
	ledger LedgerStore,
	exceptions ExceptionRaiser,
) (*Consolidator, error) {
	if facts == nil || edges == nil || ledger == nil {
		return nil, fmt.Errorf("core: consolidator requires fact reader, edge store, and ledger store")
	}
	return &Consolidator{
		facts:      facts,
		edges:      edges,
		ledger:     ledger,
		exceptions: exceptions,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Run executes one consolidation pass over payout and settlement
// identities touched since the watermark. A failure on one identity is
// recorded and the pass continues; the ledger stays append-consistent
// across partial runs.
func (c *Consolidator) Run(ctx context.Context, in ConsolidateInput) (ConsolidateResult, error) {
	if c == nil {
		return ConsolidateResult{}, fmt.Errorf("core: consolidator is not configured")
	}
	if in.TenantID == "" {
		return ConsolidateResult{}, ErrTenantRequired
	}

	facts, err := c.facts.ListFacts(ctx, in.TenantID, []IdentityKind{IdentityKindPayout, IdentityKindSettlement}, in.Since)
	if err != nil {
		return ConsolidateResult{}, err
	}
	edges, err := c.edges.ListByTenant(ctx, in.TenantID)
	if err != nil {
		return ConsolidateResult{}, err
	}

	settlesFromPayout := map[string]IdentityEdge{}
	settledSettlements := map[string]struct{}{}
	compositionInto := map[string][]IdentityEdge{}
	for _, edge := range edges {
		switch edge.Type {
		case EdgeTypeSettles:
			settlesFromPayout[edge.FromIdentityID] = edge
			settledSettlements[edge.ToIdentityID] = struct{}{}
		case EdgeTypeComposedOf:
			compositionInto[edge.ToIdentityID] = append(compositionInto[edge.ToIdentityID], edge)
		}
	}

	settlementFacts := map[string]IdentityFact{}
	for _, fact := range facts {
		if fact.Identity.Kind == IdentityKindSettlement {
			settlementFacts[fact.Identity.ID] = fact
		}
	}

	result := ConsolidateResult{}
	sortFactsByTime(facts)
	for _, fact := range facts {
		switch fact.Identity.Kind {
		case IdentityKindPayout:
			c.consolidatePayout(ctx, in.TenantID, fact, settlesFromPayout, compositionInto, settlementFacts, &result)
		case IdentityKindSettlement:
			if _, claimed := settledSettlements[fact.Identity.ID]; claimed {
				continue
			}
			c.consolidateDirectSettlement(ctx, in.TenantID, fact, &result)
		}
	}
	return result, nil
}

func (c *Consolidator) consolidatePayout(
	ctx context.Context,
	tenantID string,
	payout IdentityFact,
	settlesFromPayout map[string]IdentityEdge,
	compositionInto map[string][]IdentityEdge,
	settlementFacts map[string]IdentityFact,
	result *ConsolidateResult,
) {
	settlesEdge, settled := settlesFromPayout[payout.Identity.ID]
	if !settled {
		// In transit: left out of the ledger until a settlement or an
		// aging-triggered exception appears.
		result.Skipped++
		return
	}
	settlement, ok := settlementFacts[settlesEdge.ToIdentityID]
	if !ok {
		loaded, err := c.loadSettlementFact(ctx, tenantID, settlesEdge.ToIdentityID)
		if err != nil {
			c.recordFailure(ctx, tenantID, payout.Identity.ID, err, result)
			return
		}
		settlement = loaded
	}

	// The settlement may already carry a direct entry from a pass that ran
	// before the SETTLES edge existed. That entry recognizes this movement;
	// writing a second one on the payout identity would double-count it.
	if _, lookupErr := c.ledger.GetByIdentity(ctx, settlement.Identity.ID); lookupErr == nil {
		result.Skipped++
		return
	} else if !errors.Is(lookupErr, ErrLedgerEntryNotFound) {
		c.recordFailure(ctx, tenantID, payout.Identity.ID, lookupErr, result)
		return
	}

	provenance := LedgerProvenance{
		SchemaVersion: 1,
		SettlesEdgeID: settlesEdge.ID,
		RawEventIDs:   append(append([]string(nil), payout.RawEventIDs...), settlement.RawEventIDs...),
		MatcherReasons: []string{
			settlesEdge.Reason,
		},
	}
	for _, composition := range compositionInto[payout.Identity.ID] {
		provenance.CompositionIDs = append(provenance.CompositionIDs, composition.ID)
	}

	// The amount is always the bank-reported net; summing composed parts
	// would reintroduce drift between processor and bank views.
	entry := CashLedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		IdentityID:  payout.Identity.ID,
		PostedAt:    settlement.OccurredAt,
		Direction:   DirectionForAmount(settlement.AmountMinor),
		AmountMinor: settlement.AmountMinor,
		Currency:    settlement.Currency,
		Provenance:  provenance,
		CreatedAt:   c.now(),
	}
	c.writeEntry(ctx, tenantID, entry, result)
}

func (c *Consolidator) consolidateDirectSettlement(
	ctx context.Context,
	tenantID string,
	settlement IdentityFact,
	result *ConsolidateResult,
) {
	// A bank record with no payout behind it (a check, a manual transfer)
	// is a recognized movement on its own.
	entry := CashLedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		IdentityID:  settlement.Identity.ID,
		PostedAt:    settlement.OccurredAt,
		Direction:   DirectionForAmount(settlement.AmountMinor),
		AmountMinor: settlement.AmountMinor,
		Currency:    settlement.Currency,
		Provenance: LedgerProvenance{
			SchemaVersion:  1,
			RawEventIDs:    append([]string(nil), settlement.RawEventIDs...),
			MatcherReasons: []string{"direct bank record with no settling payout"},
		},
		CreatedAt: c.now(),
	}
	c.writeEntry(ctx, tenantID, entry, result)
}

func (c *Consolidator) writeEntry(
	ctx context.Context,
	tenantID string,
	entry CashLedgerEntry,
	result *ConsolidateResult,
) {
	written, created, err := c.ledger.InsertIfAbsent(ctx, entry)
	if err != nil {
		c.recordFailure(ctx, tenantID, entry.IdentityID, err, result)
		return
	}
	if !created {
		result.Skipped++
		return
	}
	result.Entries = append(result.Entries, written)
}

func (c *Consolidator) loadSettlementFact(ctx context.Context, tenantID string, identityID string) (IdentityFact, error) {
	facts, err := c.facts.ListFactsByIDs(ctx, tenantID, []string{identityID})
	if err != nil {
		return IdentityFact{}, err
	}
	if len(facts) == 0 {
		return IdentityFact{}, fmt.Errorf("%w: settlement %s", ErrIdentityNotFound, identityID)
	}
	return facts[0], nil
}

func (c *Consolidator) recordFailure(
	ctx context.Context,
	tenantID string,
	identityID string,
	cause error,
	result *ConsolidateResult,
) {
	result.Failed++
	if c.exceptions == nil {
		return
	}
	exception, created, err := c.exceptions.Raise(ctx, tenantID, ExceptionProposal{
		Kind:              ExceptionKindNoMatch,
		SubjectIdentityID: identityID,
		Detail:            "consolidation failed: " + cause.Error(),
	})
	if err != nil || !created {
		return
	}
	result.Exceptions = append(result.Exceptions, exception)
}
