package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExceptionManager owns the open/resolve lifecycle. Raising is idempotent
// on the (kind, subject) dedupe key while an exception stays open;
// resolution writes the reviewer's chosen edges and reschedules the touched
// identities for consolidation.
type ExceptionManager struct {
	exceptions ExceptionStore
	edges      EdgeStore
	identities IdentityStore
	now        func() time.Time
}

func NewExceptionManager(
	exceptions ExceptionStore,
	edges EdgeStore,
	identities IdentityStore,
) (*ExceptionManager, error) {
	if exceptions == nil {
		return nil, fmt.Errorf("core: exception manager requires an exception store")
	}
	return &ExceptionManager{
		exceptions: exceptions,
		edges:      edges,
		identities: identities,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Raise opens an exception or refreshes the context of the open one with
// the same dedupe key. created reports whether a new row was opened.
func (m *ExceptionManager) Raise(ctx context.Context, tenantID string, proposal ExceptionProposal) (Exception, bool, error) {
	if m == nil || m.exceptions == nil {
		return Exception{}, false, fmt.Errorf("core: exception manager is not configured")
	}
	if strings.TrimSpace(tenantID) == "" {
		return Exception{}, false, ErrTenantRequired
	}
	if err := proposal.Kind.Validate(); err != nil {
		return Exception{}, false, err
	}
	subject := strings.TrimSpace(proposal.SubjectIdentityID)
	if subject == "" {
		return Exception{}, false, fmt.Errorf("%w: exception subject identity is required", ErrInvalidExceptionKind)
	}

	now := m.now()
	exception := Exception{
		ID:        uuid.NewString(),
		TenantID:  strings.TrimSpace(tenantID),
		Kind:      proposal.Kind,
		Status:    ExceptionStatusOpen,
		DedupeKey: ExceptionDedupeKey(proposal.Kind, subject),
		Context: ExceptionContext{
			SchemaVersion:     1,
			SubjectIdentityID: subject,
			Candidates:        proposal.Candidates,
			Detail:            proposal.Detail,
			ObservedAt:        now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return m.exceptions.UpsertOpen(ctx, exception)
}

// Resolve marks an exception resolved, records the reviewer's chosen edges
// with resolution origin, and bumps the touched identities so the next
// consolidation pass picks them back up. Resolving twice fails with
// ErrExceptionAlreadyResolved; the first resolution stands.
func (m *ExceptionManager) Resolve(ctx context.Context, in ResolveExceptionInput) (ResolveExceptionResult, error) {
	if m == nil || m.exceptions == nil {
		return ResolveExceptionResult{}, fmt.Errorf("core: exception manager is not configured")
	}
	id := strings.TrimSpace(in.ExceptionID)
	if id == "" {
		return ResolveExceptionResult{}, fmt.Errorf("%w: exception id is required", ErrExceptionNotFound)
	}

	exception, err := m.exceptions.Get(ctx, id)
	if err != nil {
		return ResolveExceptionResult{}, err
	}
	if exception.Status == ExceptionStatusResolved {
		return ResolveExceptionResult{}, fmt.Errorf("%w: %s", ErrExceptionAlreadyResolved, id)
	}

	now := m.now()
	touched := map[string]struct{}{}
	if exception.Context.SubjectIdentityID != "" {
		touched[exception.Context.SubjectIdentityID] = struct{}{}
	}

	result := ResolveExceptionResult{}
	for _, chosen := range in.ChosenEdges {
		edge := chosen
		edge.TenantID = exception.TenantID
		edge.Origin = EdgeOriginResolution
		if edge.Confidence == 0 {
			edge.Confidence = 1.0
		}
		if strings.TrimSpace(edge.Reason) == "" {
			edge.Reason = "reviewer resolution of exception " + exception.ID
		}
		if strings.TrimSpace(edge.ID) == "" {
			edge.ID = uuid.NewString()
		}
		if edge.CreatedAt.IsZero() {
			edge.CreatedAt = now
		}
		if err := edge.Validate(); err != nil {
			return ResolveExceptionResult{}, err
		}
		written, _, err := m.edges.InsertIfAbsent(ctx, edge)
		if err != nil {
			return ResolveExceptionResult{}, err
		}
		result.Edges = append(result.Edges, written)
		touched[written.FromIdentityID] = struct{}{}
		touched[written.ToIdentityID] = struct{}{}
	}

	resolved, err := m.exceptions.MarkResolved(ctx, exception.ID, strings.TrimSpace(in.ResolvedBy), now)
	if err != nil {
		return ResolveExceptionResult{}, err
	}
	result.Exception = resolved

	ids := make([]string, 0, len(touched))
	for identityID := range touched {
		ids = append(ids, identityID)
	}
	sort.Strings(ids)
	if len(ids) > 0 && m.identities != nil {
		if err := m.identities.Touch(ctx, ids, now); err != nil {
			return ResolveExceptionResult{}, err
		}
	}
	result.Rescheduled = ids
	return result, nil
}
