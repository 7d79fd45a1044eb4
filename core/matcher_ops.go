package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MatchOpsPayments links operational-system payments to processor charges.
// Explicit cross-reference metadata wins at confidence 1.0. The fallback
// requires amount equality, a bounded time gap, and descriptor similarity
// at or above the configured threshold; anything below threshold or tied at
// the top defers to an ambiguous-match exception.
func MatchOpsPayments(
	opsPayments []IdentityFact,
	charges []IdentityFact,
	edges []IdentityEdge,
	cfg MatcherConfig,
	fingerprint FingerprintConfig,
) MatchProposals {
	proposals := MatchProposals{}
	index := newEdgeIndex(edges)

	chargeByExternalID := make(map[string]IdentityFact, len(charges))
	for _, charge := range charges {
		externalID := strings.TrimSpace(charge.ExternalID)
		if externalID != "" {
			chargeByExternalID[externalID] = charge
		}
	}

	sortFactsByTime(opsPayments)
	for _, payment := range opsPayments {
		if index.hasOutgoing(payment.Identity.ID, EdgeTypeAppliesTo) {
			continue
		}
		if crossRef := strings.TrimSpace(payment.ParentExternalID); crossRef != "" {
			if charge, ok := chargeByExternalID[crossRef]; ok {
				proposals.addEdge(EdgeProposal{
					FromIdentityID: payment.Identity.ID,
					ToIdentityID:   charge.Identity.ID,
					Type:           EdgeTypeAppliesTo,
					Confidence:     1.0,
					Reason:         "operational cross-reference " + crossRef,
				})
				continue
			}
		}
		matchOpsPaymentFallback(&proposals, payment, charges, cfg, fingerprint)
	}
	return proposals
}

type opsCandidate struct {
	fact       IdentityFact
	similarity float64
	timeGap    time.Duration
}

func matchOpsPaymentFallback(
	proposals *MatchProposals,
	payment IdentityFact,
	charges []IdentityFact,
	cfg MatcherConfig,
	fingerprint FingerprintConfig,
) {
	window := time.Duration(cfg.OpsMatchWindowHours) * time.Hour
	candidates := make([]opsCandidate, 0, 2)
	for _, charge := range charges {
		if !sameCurrency(charge.Currency, payment.Currency) {
			continue
		}
		if absMinor(charge.AmountMinor) != absMinor(payment.AmountMinor) {
			continue
		}
		gap := absDuration(charge.OccurredAt.Sub(payment.OccurredAt))
		if gap > window {
			continue
		}
		candidates = append(candidates, opsCandidate{
			fact:       charge,
			timeGap:    gap,
			similarity: descriptorSimilarity(payment.Counterparty, charge.Counterparty, fingerprint.StopTokens),
		})
	}
	if len(candidates) == 0 {
		// Nothing near in amount and time; ghost aging decides later
		// whether this becomes an exception.
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		if candidates[i].timeGap != candidates[j].timeGap {
			return candidates[i].timeGap < candidates[j].timeGap
		}
		return candidates[i].fact.Identity.ID < candidates[j].fact.Identity.ID
	})

	best := candidates[0]
	belowThreshold := best.similarity < cfg.SimilarityThreshold
	tiedAtTop := len(candidates) > 1 &&
		candidates[1].similarity == best.similarity &&
		candidates[1].timeGap == best.timeGap
	if belowThreshold || tiedAtTop {
		exception := ExceptionProposal{
			Kind:              ExceptionKindAmbiguousMatch,
			SubjectIdentityID: payment.Identity.ID,
			Candidates:        opsExceptionCandidates(candidates),
		}
		if belowThreshold {
			exception.Detail = fmt.Sprintf(
				"best descriptor similarity %.2f below threshold %.2f",
				best.similarity, cfg.SimilarityThreshold,
			)
		} else {
			exception.Detail = fmt.Sprintf(
				"%d charges tied at similarity %.2f",
				len(candidates), best.similarity,
			)
		}
		proposals.addException(exception)
		return
	}

	proposals.addEdge(EdgeProposal{
		FromIdentityID: payment.Identity.ID,
		ToIdentityID:   best.fact.Identity.ID,
		Type:           EdgeTypeAppliesTo,
		Confidence:     best.similarity,
		Reason: fmt.Sprintf(
			"amount and descriptor match (similarity %.2f, %s apart)",
			best.similarity, best.timeGap,
		),
	})
}

func opsExceptionCandidates(candidates []opsCandidate) []ExceptionCandidate {
	out := make([]ExceptionCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, ExceptionCandidate{
			IdentityID: candidate.fact.Identity.ID,
			Score:      candidate.similarity,
			Reason:     fmt.Sprintf("equal amount, %s apart", candidate.timeGap),
		})
	}
	return out
}

// DetectGhosts flags operational invoices and payments their source system
// claims are paid but for which no processor or bank evidence has appeared
// within the aging window. Ghost identities stay out of the ledger until a
// reviewer resolves them.
func DetectGhosts(
	opsFacts []IdentityFact,
	edges []IdentityEdge,
	cfg MatcherConfig,
	now time.Time,
) MatchProposals {
	proposals := MatchProposals{}
	index := newEdgeIndex(edges)
	aging := time.Duration(cfg.GhostAgingDays) * 24 * time.Hour

	for _, fact := range opsFacts {
		if !strings.EqualFold(strings.TrimSpace(fact.SubType), SubTypePaid) {
			continue
		}
		if index.hasOutgoing(fact.Identity.ID, EdgeTypeAppliesTo) {
			continue
		}
		age := now.Sub(fact.OccurredAt)
		if age < aging {
			continue
		}
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindGhostRecord,
			SubjectIdentityID: fact.Identity.ID,
			Detail: fmt.Sprintf(
				"%s marked paid %s ago with no corroborating cash evidence",
				fact.Identity.Kind, age.Truncate(time.Hour),
			),
		})
	}
	return proposals
}

// AgeInTransitPayouts promotes payouts that stayed unsettled past the aging
// threshold to timing-drift exceptions. Severity stays informational until
// the second threshold passes; the exception context records which side of
// that line the payout is on.
func AgeInTransitPayouts(
	payouts []IdentityFact,
	edges []IdentityEdge,
	cfg MatcherConfig,
	now time.Time,
) MatchProposals {
	proposals := MatchProposals{}
	index := newEdgeIndex(edges)
	aging := time.Duration(cfg.PayoutAgingDays) * 24 * time.Hour
	critical := time.Duration(cfg.TimingDriftDays) * 24 * time.Hour

	for _, payout := range payouts {
		if index.hasOutgoing(payout.Identity.ID, EdgeTypeSettles) {
			continue
		}
		age := now.Sub(payout.OccurredAt)
		if age < aging {
			continue
		}
		severity := "informational"
		if age >= critical {
			severity = "critical"
		}
		proposals.addException(ExceptionProposal{
			Kind:              ExceptionKindTimingDrift,
			SubjectIdentityID: payout.Identity.ID,
			Detail: fmt.Sprintf(
				"payout in transit for %s (%s)",
				age.Truncate(time.Hour), severity,
			),
		})
	}
	return proposals
}
