package core

import (
	"fmt"
	"sort"
	"time"
)

const settlementTieBreakConfidence = 0.9

// MatchSettlements links payouts to the bank credits that settle them.
// Decision policy: exactly one candidate settles at confidence 1.0; zero
// candidates leaves the payout in transit; several candidates are
// tie-broken by nearest date then descriptor similarity, and anything still
// tied becomes an ambiguous-match exception carrying every candidate.
// A settlement claimed by one payout is reserved for the rest of the pass;
// a later payout whose only candidates are already claimed contends for the
// same cash and defers to an ambiguous-match exception instead of claiming
// the credit a second time.
func MatchSettlements(
	payouts []IdentityFact,
	settlements []IdentityFact,
	edges []IdentityEdge,
	cfg MatcherConfig,
	fingerprint FingerprintConfig,
) MatchProposals {
	proposals := MatchProposals{}
	index := newEdgeIndex(edges)
	claimed := map[string]struct{}{}

	sortFactsByTime(payouts)
	for _, payout := range payouts {
		if index.hasOutgoing(payout.Identity.ID, EdgeTypeSettles) {
			continue
		}
		candidates, contended := settlementCandidates(payout, settlements, index, claimed, cfg)
		switch len(candidates) {
		case 0:
			if len(contended) > 0 {
				proposals.addException(ExceptionProposal{
					Kind:              ExceptionKindAmbiguousMatch,
					SubjectIdentityID: payout.Identity.ID,
					Candidates:        settlementExceptionCandidates(contended),
					Detail: fmt.Sprintf(
						"all %d settlement candidates claimed by earlier payouts in this pass",
						len(contended),
					),
				})
				continue
			}
			// In transit. Aging to a timing exception happens in a later
			// pass, not here.
			continue
		case 1:
			proposals.addEdge(EdgeProposal{
				FromIdentityID: payout.Identity.ID,
				ToIdentityID:   candidates[0].fact.Identity.ID,
				Type:           EdgeTypeSettles,
				Confidence:     1.0,
				Reason: fmt.Sprintf(
					"single bank candidate within ±%dd, amount delta %d minor units",
					cfg.SettlementWindowDays, candidates[0].amountDelta,
				),
			})
			claimed[candidates[0].fact.Identity.ID] = struct{}{}
		default:
			winner, tied := breakSettlementTie(payout, candidates, fingerprint)
			if !tied {
				proposals.addEdge(EdgeProposal{
					FromIdentityID: payout.Identity.ID,
					ToIdentityID:   winner.fact.Identity.ID,
					Type:           EdgeTypeSettles,
					Confidence:     settlementTieBreakConfidence,
					Reason: fmt.Sprintf(
						"nearest-date tie-break over %d candidates (%s apart)",
						len(candidates), winner.dateDistance,
					),
				})
				claimed[winner.fact.Identity.ID] = struct{}{}
				continue
			}
			proposals.addException(ExceptionProposal{
				Kind:              ExceptionKindAmbiguousMatch,
				SubjectIdentityID: payout.Identity.ID,
				Candidates:        settlementExceptionCandidates(candidates),
				Detail: fmt.Sprintf(
					"%d equally plausible settlements for payout net %d %s",
					len(candidates), payout.AmountMinor, payout.Currency,
				),
			})
		}
	}
	return proposals
}

type settlementCandidate struct {
	fact         IdentityFact
	amountDelta  int64
	dateDistance time.Duration
	similarity   float64
}

// settlementCandidates splits the eligible settlements into those still
// available and those already claimed earlier in this pass.
func settlementCandidates(
	payout IdentityFact,
	settlements []IdentityFact,
	index edgeIndex,
	claimed map[string]struct{},
	cfg MatcherConfig,
) (available []settlementCandidate, contended []settlementCandidate) {
	for _, settlement := range settlements {
		if index.hasIncoming(settlement.Identity.ID, EdgeTypeSettles) {
			continue
		}
		if !sameCurrency(settlement.Currency, payout.Currency) {
			continue
		}
		if !withinDays(settlement.OccurredAt, payout.OccurredAt, cfg.SettlementWindowDays) {
			continue
		}
		delta := absMinor(absMinor(settlement.AmountMinor) - absMinor(payout.AmountMinor))
		if delta > cfg.AmountToleranceMinor {
			continue
		}
		candidate := settlementCandidate{
			fact:         settlement,
			amountDelta:  delta,
			dateDistance: absDuration(settlement.OccurredAt.Sub(payout.OccurredAt)),
		}
		if _, taken := claimed[settlement.Identity.ID]; taken {
			contended = append(contended, candidate)
			continue
		}
		available = append(available, candidate)
	}
	return available, contended
}

// breakSettlementTie orders candidates by date proximity, then descriptor
// similarity. Returns tied=true when the best two candidates remain
// indistinguishable; the caller must defer instead of guessing.
func breakSettlementTie(
	payout IdentityFact,
	candidates []settlementCandidate,
	fingerprint FingerprintConfig,
) (settlementCandidate, bool) {
	for i := range candidates {
		candidates[i].similarity = descriptorSimilarity(
			payout.Counterparty,
			candidates[i].fact.Counterparty,
			fingerprint.StopTokens,
		)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dateDistance != candidates[j].dateDistance {
			return candidates[i].dateDistance < candidates[j].dateDistance
		}
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].fact.Identity.ID < candidates[j].fact.Identity.ID
	})
	best, runnerUp := candidates[0], candidates[1]
	tied := best.dateDistance == runnerUp.dateDistance && best.similarity == runnerUp.similarity
	return best, tied
}

func settlementExceptionCandidates(candidates []settlementCandidate) []ExceptionCandidate {
	out := make([]ExceptionCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, ExceptionCandidate{
			IdentityID: candidate.fact.Identity.ID,
			Score:      candidate.similarity,
			Reason: fmt.Sprintf(
				"posted %s from expected arrival, amount delta %d",
				candidate.dateDistance, candidate.amountDelta,
			),
		})
	}
	return out
}
