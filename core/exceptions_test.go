package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExceptionManager_RaiseDedupesWhileOpen(t *testing.T) {
	ctx := context.Background()
	stores := newMemStores()
	manager, err := NewExceptionManager(stores.ExceptionStore(), stores.EdgeStore(), stores.IdentityStore())
	if err != nil {
		t.Fatalf("NewExceptionManager failed: %v", err)
	}

	proposal := ExceptionProposal{
		Kind:              ExceptionKindAmbiguousMatch,
		SubjectIdentityID: "p1",
		Detail:            "two candidates",
	}
	first, created, err := manager.Raise(ctx, "t1", proposal)
	if err != nil {
		t.Fatalf("first raise failed: %v", err)
	}
	if !created {
		t.Fatalf("first raise must create")
	}

	proposal.Detail = "now three candidates"
	second, created, err := manager.Raise(ctx, "t1", proposal)
	if err != nil {
		t.Fatalf("second raise failed: %v", err)
	}
	if created {
		t.Fatalf("second raise must dedupe onto the open exception")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same exception, got %s and %s", first.ID, second.ID)
	}
	if second.Context.Detail != "now three candidates" {
		t.Fatalf("raising again must refresh context, got %q", second.Context.Detail)
	}
}

func TestExceptionManager_ResolveWritesEdgesAndReschedules(t *testing.T) {
	ctx := context.Background()
	stores := newMemStores()
	before := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	stores.setFact(testFact("p1", "t1", IdentityKindPayout, 97300, before))
	stores.setFact(testFact("s1", "t1", IdentityKindSettlement, 97300, before))

	manager, _ := NewExceptionManager(stores.ExceptionStore(), stores.EdgeStore(), stores.IdentityStore())
	raised, _, err := manager.Raise(ctx, "t1", ExceptionProposal{
		Kind:              ExceptionKindAmbiguousMatch,
		SubjectIdentityID: "p1",
	})
	if err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	result, err := manager.Resolve(ctx, ResolveExceptionInput{
		ExceptionID: raised.ID,
		ResolvedBy:  "reviewer@acme",
		ChosenEdges: []IdentityEdge{{
			FromIdentityID: "p1",
			ToIdentityID:   "s1",
			Type:           EdgeTypeSettles,
		}},
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result.Exception.Status != ExceptionStatusResolved {
		t.Fatalf("exception must be resolved, got %q", result.Exception.Status)
	}
	if result.Exception.ResolvedBy != "reviewer@acme" {
		t.Fatalf("resolver attribution missing, got %q", result.Exception.ResolvedBy)
	}
	if len(result.Edges) != 1 || result.Edges[0].Origin != EdgeOriginResolution {
		t.Fatalf("chosen edge must carry resolution origin: %+v", result.Edges)
	}
	if len(result.Rescheduled) != 2 {
		t.Fatalf("both endpoints must be rescheduled, got %v", result.Rescheduled)
	}

	identity, err := stores.IdentityStore().Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !identity.UpdatedAt.After(before) {
		t.Fatalf("resolution must bump the identity watermark")
	}
}

func TestExceptionManager_ResolveTwiceFails(t *testing.T) {
	ctx := context.Background()
	stores := newMemStores()
	manager, _ := NewExceptionManager(stores.ExceptionStore(), stores.EdgeStore(), stores.IdentityStore())

	raised, _, err := manager.Raise(ctx, "t1", ExceptionProposal{
		Kind:              ExceptionKindGhostRecord,
		SubjectIdentityID: "op1",
	})
	if err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if _, err := manager.Resolve(ctx, ResolveExceptionInput{ExceptionID: raised.ID, ResolvedBy: "a"}); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	_, err = manager.Resolve(ctx, ResolveExceptionInput{ExceptionID: raised.ID, ResolvedBy: "b"})
	if !errors.Is(err, ErrExceptionAlreadyResolved) {
		t.Fatalf("expected already-resolved error, got: %v", err)
	}
}

func TestExceptionManager_RaiseAfterResolveOpensFresh(t *testing.T) {
	ctx := context.Background()
	stores := newMemStores()
	manager, _ := NewExceptionManager(stores.ExceptionStore(), stores.EdgeStore(), stores.IdentityStore())

	raised, _, err := manager.Raise(ctx, "t1", ExceptionProposal{
		Kind:              ExceptionKindTimingDrift,
		SubjectIdentityID: "p1",
	})
	if err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if _, err := manager.Resolve(ctx, ResolveExceptionInput{ExceptionID: raised.ID, ResolvedBy: "a"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	reopened, created, err := manager.Raise(ctx, "t1", ExceptionProposal{
		Kind:              ExceptionKindTimingDrift,
		SubjectIdentityID: "p1",
	})
	if err != nil {
		t.Fatalf("second raise failed: %v", err)
	}
	if !created || reopened.ID == raised.ID {
		t.Fatalf("a resolved exception must not block a fresh one")
	}
}
