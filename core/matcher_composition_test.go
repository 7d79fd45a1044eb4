package core

import (
	"strings"
	"testing"
	"time"
)

func TestMatchComposition_ExplicitParentReference(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	payout.ExternalID = "po_1"
	charge := testFact("c1", "t1", IdentityKindCharge, 97300, base)
	charge.ParentExternalID = "po_1"

	proposals := MatchComposition(
		[]IdentityFact{payout}, []IdentityFact{charge},
		nil, testMatcherCfg,
	)
	if len(proposals.Edges) != 1 {
		t.Fatalf("expected one composition edge, got %+v", proposals)
	}
	edge := proposals.Edges[0]
	if edge.Type != EdgeTypeComposedOf || edge.Confidence != 1.0 {
		t.Fatalf("explicit reference must attach at full confidence: %+v", edge)
	}
	if len(proposals.Exceptions) != 0 {
		t.Fatalf("explicitly composed payout must not raise exceptions")
	}
}

func TestMatchComposition_UniqueSubsetSum(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 97300, base)
	payout.GrossMinor = 97300
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 50000, base),
		testFact("c2", "t1", IdentityKindCharge, 45000, base),
		testFact("c3", "t1", IdentityKindCharge, 2300, base),
		testFact("c4", "t1", IdentityKindCharge, 99, base),
	}

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, testMatcherCfg)
	if len(proposals.Exceptions) != 0 {
		t.Fatalf("unique subset must not raise exceptions: %+v", proposals.Exceptions)
	}
	if len(proposals.Edges) != 3 {
		t.Fatalf("expected the 50000+45000+2300 subset, got %d edges", len(proposals.Edges))
	}
	attached := map[string]bool{}
	for _, edge := range proposals.Edges {
		if edge.Type != EdgeTypeComposedOf || edge.ToIdentityID != "p1" {
			t.Fatalf("unexpected edge: %+v", edge)
		}
		if edge.Confidence != subsetSumConfidence {
			t.Fatalf("inferred subset must carry reduced confidence, got %v", edge.Confidence)
		}
		attached[edge.FromIdentityID] = true
	}
	if !attached["c1"] || !attached["c2"] || !attached["c3"] || attached["c4"] {
		t.Fatalf("wrong subset attached: %v", attached)
	}
}

func TestMatchComposition_AmbiguousSubsets(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 950, base)
	payout.GrossMinor = 950
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 500, base),
		testFact("c2", "t1", IdentityKindCharge, 450, base),
		testFact("c3", "t1", IdentityKindCharge, 950, base),
	}

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, testMatcherCfg)
	if len(proposals.Edges) != 0 {
		t.Fatalf("ambiguous subsets must not attach, got %+v", proposals.Edges)
	}
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("expected one exception, got %d", len(proposals.Exceptions))
	}
	exception := proposals.Exceptions[0]
	if exception.Kind != ExceptionKindAmbiguousMatch {
		t.Fatalf("expected ambiguous match, got %q", exception.Kind)
	}
	if len(exception.Candidates) != 2 {
		t.Fatalf("expected both subsets as candidates, got %d", len(exception.Candidates))
	}
}

func TestMatchComposition_AmbiguityCarriesEverySubset(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 1000, base)
	payout.GrossMinor = 1000
	// Two 600s and two 400s give four distinct exact subsets.
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 600, base),
		testFact("c2", "t1", IdentityKindCharge, 400, base),
		testFact("c3", "t1", IdentityKindCharge, 600, base),
		testFact("c4", "t1", IdentityKindCharge, 400, base),
	}

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, testMatcherCfg)
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("expected one exception, got %d", len(proposals.Exceptions))
	}
	exception := proposals.Exceptions[0]
	if len(exception.Candidates) != 4 {
		t.Fatalf("candidates must list every subset, got %d", len(exception.Candidates))
	}
	if !strings.Contains(exception.Detail, "4 distinct subsets") {
		t.Fatalf("detail must count all subsets: %q", exception.Detail)
	}
	if strings.Contains(exception.Detail, "truncated") {
		t.Fatalf("complete enumeration must not claim truncation: %q", exception.Detail)
	}
}

func TestMatchComposition_AmbiguityReportsTruncation(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 1000, base)
	payout.GrossMinor = 1000
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 600, base),
		testFact("c2", "t1", IdentityKindCharge, 400, base),
		testFact("c3", "t1", IdentityKindCharge, 600, base),
		testFact("c4", "t1", IdentityKindCharge, 400, base),
	}
	cfg := testMatcherCfg
	cfg.MaxSubsetAlternatives = 3

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, cfg)
	if len(proposals.Exceptions) != 1 {
		t.Fatalf("expected one exception, got %d", len(proposals.Exceptions))
	}
	exception := proposals.Exceptions[0]
	if len(exception.Candidates) != 3 {
		t.Fatalf("enumeration must stop at the cap, got %d candidates", len(exception.Candidates))
	}
	if !strings.Contains(exception.Detail, "truncated") {
		t.Fatalf("capped enumeration must say so: %q", exception.Detail)
	}
}

func TestMatchComposition_NoSubsetIsUnaccounted(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 1000, base)
	payout.GrossMinor = 1000
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 700, base),
		testFact("c2", "t1", IdentityKindCharge, 600, base),
	}

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, testMatcherCfg)
	if len(proposals.Exceptions) != 1 || proposals.Exceptions[0].Kind != ExceptionKindNoMatch {
		t.Fatalf("expected a no-match exception, got %+v", proposals)
	}
}

func TestMatchComposition_PoolLimitSkips(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payout := testFact("p1", "t1", IdentityKindPayout, 300, base)
	payout.GrossMinor = 300
	parts := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 100, base),
		testFact("c2", "t1", IdentityKindCharge, 100, base),
		testFact("c3", "t1", IdentityKindCharge, 100, base),
	}
	cfg := testMatcherCfg
	cfg.MaxSubsetCandidates = 2

	proposals := MatchComposition([]IdentityFact{payout}, parts, nil, cfg)
	if len(proposals.Exceptions) != 1 || proposals.Exceptions[0].Kind != ExceptionKindNoMatch {
		t.Fatalf("expected a skip exception, got %+v", proposals)
	}
	if !strings.Contains(proposals.Exceptions[0].Detail, "exceed limit") {
		t.Fatalf("skip reason must mention the limit: %q", proposals.Exceptions[0].Detail)
	}
}

func TestExactSubsetSums_NegativeFees(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	pool := []IdentityFact{
		testFact("c1", "t1", IdentityKindCharge, 100000, base),
		testFact("f1", "t1", IdentityKindFee, -2700, base),
	}
	subsets := exactSubsetSums(pool, 97300, 2)
	if len(subsets) != 1 {
		t.Fatalf("expected exactly one subset, got %d", len(subsets))
	}
	if len(subsets[0]) != 2 {
		t.Fatalf("charge and fee must both participate, got %d parts", len(subsets[0]))
	}
}
