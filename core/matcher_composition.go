package core

import (
	"fmt"
	"strings"
)

const subsetSumConfidence = 0.9

// MatchComposition attaches charges, refunds, and fees to the payout they
// aggregate into. Explicit provider-supplied parent references win at
// confidence 1.0; absent those, an exact subset-sum reconciliation runs
// against the payout's gross amount. A unique subset attaches at high
// confidence, several valid subsets defer to an ambiguous-match exception,
// and no subset means money is unaccounted for and becomes a no-match
// exception.
func MatchComposition(
	payouts []IdentityFact,
	parts []IdentityFact,
	edges []IdentityEdge,
	cfg MatcherConfig,
) MatchProposals {
	proposals := MatchProposals{}
	index := newEdgeIndex(edges)

	payoutByExternalID := make(map[string]IdentityFact, len(payouts))
	for _, payout := range payouts {
		externalID := strings.TrimSpace(payout.ExternalID)
		if externalID != "" {
			payoutByExternalID[externalID] = payout
		}
	}

	attached := map[string]struct{}{}
	explicitlyComposed := map[string]struct{}{}
	for _, part := range parts {
		if index.hasOutgoing(part.Identity.ID, EdgeTypeComposedOf) {
			attached[part.Identity.ID] = struct{}{}
			continue
		}
		parentID := strings.TrimSpace(part.ParentExternalID)
		if parentID == "" {
			continue
		}
		payout, ok := payoutByExternalID[parentID]
		if !ok {
			continue
		}
		proposals.addEdge(EdgeProposal{
			FromIdentityID: part.Identity.ID,
			ToIdentityID:   payout.Identity.ID,
			Type:           EdgeTypeComposedOf,
			Confidence:     1.0,
			Reason:         "provider parent reference " + parentID,
		})
		attached[part.Identity.ID] = struct{}{}
		explicitlyComposed[payout.Identity.ID] = struct{}{}
	}

	sortFactsByTime(payouts)
	for _, payout := range payouts {
		if _, done := explicitlyComposed[payout.Identity.ID]; done {
			continue
		}
		if index.hasIncoming(payout.Identity.ID, EdgeTypeComposedOf) {
			continue
		}
		reconcileSubset(&proposals, payout, parts, attached, cfg)
	}
	return proposals
}

func reconcileSubset(
	proposals *MatchProposals,
	payout IdentityFact,
	parts []IdentityFact,
	attached map[string]struct{},
	cfg MatcherConfig,
) {
	pool := make([]IdentityFact, 0, 8)
	for _, part := range parts {
		if _, taken := attached[part.Identity.ID]; taken {
			continue
		}
		if !sameCurrency(part.Currency, payout.Currency) {
			continue
		}
		if !withinDays(part.OccurredAt, payout.OccurredAt, cfg.SettlementWindowDays) {
			continue
		}
		pool = append(pool, part)
	}
	target := payout.GrossMinor
	if target == 0 {
		target = payout.AmountMinor
	}
	if len(pool) == 0 {
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindNoMatch,
			SubjectIdentityID: payout.Identity.ID,
			Detail: fmt.Sprintf(
				"no unattached balance lines near payout for gross %d %s",
				target, payout.Currency,
			),
		})
		return
	}
	if len(pool) > cfg.MaxSubsetCandidates {
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindNoMatch,
			SubjectIdentityID: payout.Identity.ID,
			Detail: fmt.Sprintf(
				"subset reconciliation skipped: %d candidates exceed limit %d",
				len(pool), cfg.MaxSubsetCandidates,
			),
		})
		return
	}

	alternativesCap := cfg.MaxSubsetAlternatives
	if alternativesCap < 2 {
		alternativesCap = 2
	}
	subsets := exactSubsetSums(pool, target, alternativesCap)
	switch len(subsets) {
	case 1:
		for _, part := range subsets[0] {
			proposals.addEdge(EdgeProposal{
				FromIdentityID: part.Identity.ID,
				ToIdentityID:   payout.Identity.ID,
				Type:           EdgeTypeComposedOf,
				Confidence:     subsetSumConfidence,
				Reason: fmt.Sprintf(
					"unique exact subset-sum to gross %d %s over %d candidates",
					target, payout.Currency, len(pool),
				),
			})
		}
		// Reserve the chosen parts so a later payout in the same pass
		// cannot claim them again.
		for _, part := range subsets[0] {
			attached[part.Identity.ID] = struct{}{}
		}
	case 0:
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindNoMatch,
			SubjectIdentityID: payout.Identity.ID,
			Detail: fmt.Sprintf(
				"no subset of %d balance lines sums to gross %d %s",
				len(pool), target, payout.Currency,
			),
		})
	default:
		candidates := make([]ExceptionCandidate, 0, len(subsets))
		for _, subset := range subsets {
			ids := make([]string, 0, len(subset))
			for _, part := range subset {
				ids = append(ids, part.Identity.ID)
			}
			candidates = append(candidates, ExceptionCandidate{
				IdentityIDs: ids,
				Score:       subsetSumConfidence,
				Reason:      fmt.Sprintf("subset of %d lines sums to %d", len(subset), target),
			})
		}
		detail := fmt.Sprintf(
			"%d distinct subsets sum exactly to gross %d %s",
			len(subsets), target, payout.Currency,
		)
		if len(subsets) >= alternativesCap {
			detail = fmt.Sprintf(
				"at least %d distinct subsets sum exactly to gross %d %s; candidate list truncated",
				len(subsets), target, payout.Currency,
			)
		}
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindAmbiguousMatch,
			SubjectIdentityID: payout.Identity.ID,
			Candidates:        candidates,
			Detail:            detail,
		})
	}
}

// exactSubsetSums enumerates subsets whose signed amounts sum exactly to
// the target, stopping once limit subsets are found. Suffix min/max bounds
// prune branches that can no longer reach the target.
func exactSubsetSums(pool []IdentityFact, target int64, limit int) [][]IdentityFact {
	n := len(pool)
	suffixMin := make([]int64, n+1)
	suffixMax := make([]int64, n+1)
	for i := n - 1; i >= 0; i-- {
		amount := pool[i].AmountMinor
		suffixMin[i] = suffixMin[i+1]
		suffixMax[i] = suffixMax[i+1]
		if amount < 0 {
			suffixMin[i] += amount
		} else {
			suffixMax[i] += amount
		}
	}

	results := make([][]IdentityFact, 0, limit)
	chosen := make([]int, 0, n)

	var walk func(idx int, remaining int64)
	walk = func(idx int, remaining int64) {
		if len(results) >= limit {
			return
		}
		if idx == len(pool) {
			if remaining == 0 && len(chosen) > 0 {
				subset := make([]IdentityFact, 0, len(chosen))
				for _, i := range chosen {
					subset = append(subset, pool[i])
				}
				results = append(results, subset)
			}
			return
		}
		if remaining < suffixMin[idx] || remaining > suffixMax[idx] {
			return
		}
		chosen = append(chosen, idx)
		walk(idx+1, remaining-pool[idx].AmountMinor)
		chosen = chosen[:len(chosen)-1]
		walk(idx+1, remaining)
	}
	walk(0, target)
	return results
}
