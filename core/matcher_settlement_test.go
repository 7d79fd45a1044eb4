package core

import (
	"testing"
	"time"
)

var testMatcherCfg = DefaultConfig().Matcher

func TestMatchSettlements_SingleCandidate(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	settlement := testFact("s1", "t1", IdentityKindSettlement, 97250, base.Add(24*time.Hour))

	proposals := MatchSettlements(
		[]IdentityFact{payout}, []IdentityFact{settlement},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Exceptions) != 0 {
		t.Fatalf("expected no exceptions, got %d", len(proposals.Exceptions))
	}
	if len(proposals.Edges) != 1 {
		t.Fatalf("expected one edge, got %d", len(proposals.Edges))
	}
	edge := proposals.Edges[0]
	if edge.Type != EdgeTypeSettles || edge.FromIdentityID != "p1" || edge.ToIdentityID != "s1" {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if edge.Confidence != 1.0 {
		t.Fatalf("single candidate must settle at full confidence, got %v", edge.Confidence)
	}
}

func TestMatchSettlements_ToleranceAndWindowExclude(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	tooFarOff := testFact("s1", "t1", IdentityKindSettlement, 96000, base.Add(24*time.Hour))
	tooLate := testFact("s2", "t1", IdentityKindSettlement, 97300, base.Add(5*24*time.Hour))

	proposals := MatchSettlements(
		[]IdentityFact{payout}, []IdentityFact{tooFarOff, tooLate},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 0 || len(proposals.Exceptions) != 0 {
		t.Fatalf("payout must stay in transit, got %+v", proposals)
	}
}

func TestMatchSettlements_TieBreakByDate(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	near := testFact("s1", "t1", IdentityKindSettlement, 97300, base.Add(12*time.Hour))
	far := testFact("s2", "t1", IdentityKindSettlement, 97300, base.Add(40*time.Hour))

	proposals := MatchSettlements(
		[]IdentityFact{payout}, []IdentityFact{near, far},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 1 {
		t.Fatalf("expected tie-break winner, got %+v", proposals)
	}
	edge := proposals.Edges[0]
	if edge.ToIdentityID != "s1" {
		t.Fatalf("expected nearest-date settlement to win, got %s", edge.ToIdentityID)
	}
	if edge.Confidence != settlementTieBreakConfidence {
		t.Fatalf("tie-broken match must carry reduced confidence, got %v", edge.Confidence)
	}
}

func TestMatchSettlements_AmbiguityDefersToException(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	first := testFact("s1", "t1", IdentityKindSettlement, 97300, base.Add(12*time.Hour))
	second := testFact("s2", "t1", IdentityKindSettlement, 97300, base.Add(12*time.Hour))

	proposals := MatchSettlements(
		[]IdentityFact{payout}, []IdentityFact{first, second},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 0 {
		t.Fatalf("indistinguishable candidates must not produce an edge")
	}
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("expected one exception, got %d", len(proposals.Exceptions))
	}
	exception := proposals.Exceptions[0]
	if exception.Kind != ExceptionKindAmbiguousMatch || exception.SubjectIdentityID != "p1" {
		t.Fatalf("unexpected exception: %+v", exception)
	}
	if len(exception.Candidates) != 2 {
		t.Fatalf("exception must carry every candidate, got %d", len(exception.Candidates))
	}
}

func TestMatchSettlements_ContendedSettlementClaimedOnce(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first := testFact("pA", "t1", IdentityKindPayout, 95000, base)
	second := testFact("pB", "t1", IdentityKindPayout, 95000, base.Add(time.Hour))
	settlement := testFact("s1", "t1", IdentityKindSettlement, 95000, base.Add(12*time.Hour))

	proposals := MatchSettlements(
		[]IdentityFact{second, first}, []IdentityFact{settlement},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 1 {
		t.Fatalf("one credit must settle one payout, got %d edges", len(proposals.Edges))
	}
	edge := proposals.Edges[0]
	if edge.FromIdentityID != "pA" || edge.ToIdentityID != "s1" {
		t.Fatalf("earliest payout must claim the credit, got %+v", edge)
	}
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("the contending payout must defer, got %+v", proposals.Exceptions)
	}
	exception := proposals.Exceptions[0]
	if exception.Kind != ExceptionKindAmbiguousMatch || exception.SubjectIdentityID != "pB" {
		t.Fatalf("unexpected exception: %+v", exception)
	}
	if len(exception.Candidates) != 1 || exception.Candidates[0].IdentityID != "s1" {
		t.Fatalf("exception must name the contended settlement, got %+v", exception.Candidates)
	}
}

func TestMatchSettlements_SkipsAlreadySettled(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	settlement := testFact("s1", "t1", IdentityKindSettlement, 97300, base.Add(12*time.Hour))
	existing := []IdentityEdge{{
		TenantID:       "t1",
		FromIdentityID: "p1",
		ToIdentityID:   "s1",
		Type:           EdgeTypeSettles,
	}}

	proposals := MatchSettlements(
		[]IdentityFact{payout}, []IdentityFact{settlement},
		existing, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 0 || len(proposals.Exceptions) != 0 {
		t.Fatalf("re-running over an unchanged graph must be a no-op, got %+v", proposals)
	}
}
