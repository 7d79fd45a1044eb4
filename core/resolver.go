package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	linkConfidenceExact    = 1.0
	linkConfidenceDegraded = 0.5
)

// IdentityResolver maps fingerprints to canonical identities. Races between
// feeds resolving the same fingerprint converge through the store's atomic
// insert-or-fetch on the (tenant, fingerprint) unique constraint; the
// resolver never does a read-then-write pair.
type IdentityResolver struct {
	identities IdentityStore
	now        func() time.Time
}

func NewIdentityResolver(identities IdentityStore) (*IdentityResolver, error) {
	if identities == nil {
		return nil, fmt.Errorf("core: identity store is required")
	}
	return &IdentityResolver{
		identities: identities,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Resolve attaches the raw event to the identity its fingerprint denotes,
// creating the identity on first observation. Exactly one identity (at
// most) and one link are written per call.
func (r *IdentityResolver) Resolve(
	ctx context.Context,
	event RawEvent,
	fingerprint FingerprintResult,
) (Identity, IdentityLink, bool, error) {
	if r == nil || r.identities == nil {
		return Identity{}, IdentityLink{}, false, fmt.Errorf("core: identity resolver is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return Identity{}, IdentityLink{}, false, fmt.Errorf("core: raw event id is required")
	}
	if strings.TrimSpace(fingerprint.Key) == "" {
		return Identity{}, IdentityLink{}, false, fmt.Errorf("core: fingerprint key is required")
	}
	if err := fingerprint.Kind.Validate(); err != nil {
		return Identity{}, IdentityLink{}, false, err
	}

	now := r.now()
	identity, created, err := r.identities.InsertOrFetch(ctx, Identity{
		ID:            uuid.NewString(),
		TenantID:      event.TenantID,
		Fingerprint:   fingerprint.Key,
		Kind:          fingerprint.Kind,
		LowConfidence: fingerprint.LowConfidence,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Identity{}, IdentityLink{}, false, err
	}
	if identity.Kind != fingerprint.Kind {
		return Identity{}, IdentityLink{}, false, fmt.Errorf(
			"%w: fingerprint %s maps to %s, event is %s",
			ErrIncompatibleIdentityKind, fingerprint.Key, identity.Kind, fingerprint.Kind,
		)
	}

	link, err := r.identities.InsertLink(ctx, IdentityLink{
		ID:         uuid.NewString(),
		IdentityID: identity.ID,
		RawEventID: event.ID,
		Confidence: linkConfidence(fingerprint),
		Reason:     linkReason(event, fingerprint),
		CreatedAt:  now,
	})
	if err != nil {
		return Identity{}, IdentityLink{}, false, err
	}
	return identity, link, created, nil
}

func linkConfidence(fingerprint FingerprintResult) float64 {
	if fingerprint.LowConfidence {
		return linkConfidenceDegraded
	}
	return linkConfidenceExact
}

func linkReason(event RawEvent, fingerprint FingerprintResult) string {
	switch event.Kind {
	case EventKindBankTxn:
		if fingerprint.LowConfidence {
			return "bank record with degraded inputs: " + fingerprint.Reason
		}
		return "bank record on account/amount/day/counterparty"
	case EventKindPayout:
		return "provider payout id " + strings.TrimSpace(event.ExternalID)
	case EventKindBalanceTxn:
		subType := strings.TrimSpace(strings.ToLower(event.SubType))
		if subType == SubTypePayout {
			return "balance line referencing payout " + strings.TrimSpace(event.ParentExternalID)
		}
		return "balance line " + subType + " " + strings.TrimSpace(event.ExternalID)
	default:
		return string(event.Kind) + " " + strings.TrimSpace(event.ExternalID)
	}
}
