package core

import (
	"strings"
	"testing"
	"time"
)

func TestMatchOpsPayments_ExplicitCrossReference(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	charge := testFact("c1", "t1", IdentityKindCharge, 5000, base)
	charge.ExternalID = "ch_1"
	payment := testFact("op1", "t1", IdentityKindPayment, 5000, base)
	payment.ParentExternalID = "ch_1"

	proposals := MatchOpsPayments(
		[]IdentityFact{payment}, []IdentityFact{charge},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 1 {
		t.Fatalf("expected one edge, got %+v", proposals)
	}
	edge := proposals.Edges[0]
	if edge.Type != EdgeTypeAppliesTo || edge.Confidence != 1.0 {
		t.Fatalf("cross-referenced payment must apply at full confidence: %+v", edge)
	}
}

func TestMatchOpsPayments_FallbackSimilarity(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	charge := testFact("c1", "t1", IdentityKindCharge, 5000, base)
	charge.Counterparty = "ACME WIDGETS ORDER 42"
	payment := testFact("op1", "t1", IdentityKindPayment, 5000, base.Add(3*time.Hour))
	payment.Counterparty = "ACME WIDGETS ORDER 42"

	proposals := MatchOpsPayments(
		[]IdentityFact{payment}, []IdentityFact{charge},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 1 {
		t.Fatalf("expected a fallback match, got %+v", proposals)
	}
	if proposals.Edges[0].Confidence != 1.0 {
		t.Fatalf("identical descriptors must score 1.0, got %v", proposals.Edges[0].Confidence)
	}
}

func TestMatchOpsPayments_BelowThresholdDefers(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	charge := testFact("c1", "t1", IdentityKindCharge, 5000, base)
	charge.Counterparty = "GLOBEX LLC"
	payment := testFact("op1", "t1", IdentityKindPayment, 5000, base.Add(time.Hour))
	payment.Counterparty = "ACME WIDGETS"

	proposals := MatchOpsPayments(
		[]IdentityFact{payment}, []IdentityFact{charge},
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 0 {
		t.Fatalf("dissimilar descriptors must not match, got %+v", proposals.Edges)
	}
	if len(proposals.Exceptions) != 1 || proposals.Exceptions[0].Kind != ExceptionKindAmbiguousMatch {
		t.Fatalf("expected an ambiguous-match exception, got %+v", proposals.Exceptions)
	}
}

func TestMatchOpsPayments_NoCandidateIsSilent(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payment := testFact("op1", "t1", IdentityKindPayment, 5000, base)

	proposals := MatchOpsPayments(
		[]IdentityFact{payment}, nil,
		nil, testMatcherCfg, FingerprintConfig{},
	)
	if len(proposals.Edges) != 0 || len(proposals.Exceptions) != 0 {
		t.Fatalf("ghost aging owns the no-candidate case, got %+v", proposals)
	}
}

func TestDetectGhosts(t *testing.T) {
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	stale := testFact("op1", "t1", IdentityKindPayment, 5000, now.Add(-10*24*time.Hour))
	stale.SubType = SubTypePaid
	fresh := testFact("op2", "t1", IdentityKindPayment, 5000, now.Add(-2*24*time.Hour))
	fresh.SubType = SubTypePaid
	unpaid := testFact("op3", "t1", IdentityKindPayment, 5000, now.Add(-30*24*time.Hour))

	proposals := DetectGhosts([]IdentityFact{stale, fresh, unpaid}, nil, testMatcherCfg, now)
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("expected only the stale paid record to ghost, got %+v", proposals.Exceptions)
	}
	exception := proposals.Exceptions[0]
	if exception.Kind != ExceptionKindGhostRecord || exception.SubjectIdentityID != "op1" {
		t.Fatalf("unexpected exception: %+v", exception)
	}
}

func TestDetectGhosts_SkipsMatchedRecords(t *testing.T) {
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	matched := testFact("op1", "t1", IdentityKindPayment, 5000, now.Add(-10*24*time.Hour))
	matched.SubType = SubTypePaid
	edges := []IdentityEdge{{
		TenantID:       "t1",
		FromIdentityID: "op1",
		ToIdentityID:   "c1",
		Type:           EdgeTypeAppliesTo,
	}}

	proposals := DetectGhosts([]IdentityFact{matched}, edges, testMatcherCfg, now)
	if len(proposals.Exceptions) != 0 {
		t.Fatalf("corroborated records must not ghost, got %+v", proposals.Exceptions)
	}
}

func TestAgeInTransitPayouts(t *testing.T) {
	now := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	aging := testFact("p1", "t1", IdentityKindPayout, 97300, now.Add(-6*24*time.Hour))
	critical := testFact("p2", "t1", IdentityKindPayout, 50000, now.Add(-12*24*time.Hour))
	recent := testFact("p3", "t1", IdentityKindPayout, 10000, now.Add(-24*time.Hour))
	settled := testFact("p4", "t1", IdentityKindPayout, 20000, now.Add(-20*24*time.Hour))
	edges := []IdentityEdge{{
		TenantID:       "t1",
		FromIdentityID: "p4",
		ToIdentityID:   "s1",
		Type:           EdgeTypeSettles,
	}}

	proposals := AgeInTransitPayouts([]IdentityFact{aging, critical, recent, settled}, edges, testMatcherCfg, now)
	if len(proposals.Exceptions) != 2 {
		t.Fatalf("expected two timing exceptions, got %+v", proposals.Exceptions)
	}
	bySubject := map[string]ExceptionProposal{}
	for _, exception := range proposals.Exceptions {
		if exception.Kind != ExceptionKindTimingDrift {
			t.Fatalf("expected timing drift, got %q", exception.Kind)
		}
		bySubject[exception.SubjectIdentityID] = exception
	}
	if _, ok := bySubject["p1"]; !ok {
		t.Fatalf("expected p1 to age informationally")
	}
	critException, ok := bySubject["p2"]
	if !ok {
		t.Fatalf("expected p2 to age critically")
	}
	if want := "critical"; !strings.Contains(critException.Detail, want) {
		t.Fatalf("expected %q in detail %q", want, critException.Detail)
	}
}
