package reconcile

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	reconcilecommand "github.com/goliatone/go-reconcile/command"
	"github.com/goliatone/go-reconcile/core"
	reconcilequery "github.com/goliatone/go-reconcile/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}
	activityReader := &stubFacadeActivityReader{}

	facade, err := NewFacade(svc, WithActivityReader(activityReader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.IngestBatch == nil || commands.RunMatchers == nil || commands.Consolidate == nil || commands.ResolveException == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.ListPayoutStatuses == nil || queries.ListOpenExceptions == nil || queries.GetIdentityProvenance == nil || queries.ListActivity == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	activityReader := &stubFacadeActivityReader{}

	facade, err := NewFacade(svc, WithActivityReader(activityReader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[core.MatchResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().RunMatchers.Execute(ctx, reconcilecommand.RunMatchersMessage{
		TenantID: "t1",
	}); err != nil {
		t.Fatalf("execute run matchers command: %v", err)
	}
	if svc.lastMatchTenant != "t1" {
		t.Fatalf("unexpected matcher delegation payload")
	}
	if result, ok := collector.Load(); !ok || len(result.Edges) != 1 {
		t.Fatalf("expected matcher result through collector, got %#v", result)
	}

	statuses, err := facade.Queries().ListPayoutStatuses.Query(context.Background(), reconcilequery.ListPayoutStatusesMessage{
		Filter: core.PayoutStatusFilter{TenantID: "t1"},
	})
	if err != nil {
		t.Fatalf("query payout statuses: %v", err)
	}
	if len(statuses) != 1 || statuses[0].State != core.PayoutStateInTransit {
		t.Fatalf("unexpected payout status result: %#v", statuses)
	}

	activity, err := facade.Queries().ListActivity.Query(context.Background(), reconcilequery.ListActivityMessage{
		TenantID: "t1",
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("query activity: %v", err)
	}
	if len(activity) != 1 || activity[0].Action != "reconcile.ingest_batch" {
		t.Fatalf("unexpected activity result: %#v", activity)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastMatchTenant string
}

func (s *stubFacadeService) IngestBatch(context.Context, core.IngestBatchInput) (core.IngestBatchResult, error) {
	return core.IngestBatchResult{Stored: 1}, nil
}

func (s *stubFacadeService) RunMatchers(_ context.Context, tenantID string) (core.MatchResult, error) {
	s.lastMatchTenant = tenantID
	return core.MatchResult{Edges: []core.IdentityEdge{{ID: "edge-1", Type: core.EdgeTypeSettles}}}, nil
}

func (s *stubFacadeService) Consolidate(context.Context, core.ConsolidateInput) (core.ConsolidateResult, error) {
	return core.ConsolidateResult{}, nil
}

func (s *stubFacadeService) ResolveException(context.Context, core.ResolveExceptionInput) (core.ResolveExceptionResult, error) {
	return core.ResolveExceptionResult{}, nil
}

func (s *stubFacadeService) ListPayoutStatuses(context.Context, core.PayoutStatusFilter) ([]core.PayoutStatus, error) {
	return []core.PayoutStatus{{
		Identity: core.Identity{ID: "id-1", Kind: core.IdentityKindPayout},
		State:    core.PayoutStateInTransit,
	}}, nil
}

func (s *stubFacadeService) ListOpenExceptions(context.Context, string, core.ExceptionKind) ([]core.Exception, error) {
	return []core.Exception{{ID: "ex-1", Status: core.ExceptionStatusOpen}}, nil
}

func (s *stubFacadeService) GetIdentityProvenance(context.Context, string) (core.IdentityProvenance, error) {
	return core.IdentityProvenance{Identity: core.Identity{ID: "id-1"}}, nil
}

type stubFacadeActivityReader struct{}

func (s *stubFacadeActivityReader) List(context.Context, string, int) ([]core.ActivityEntry, error) {
	return []core.ActivityEntry{{ID: "act-1", Action: "reconcile.ingest_batch", Status: core.ActivityStatusOK}}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
