package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// FingerprintResult is the deterministic, source-agnostic identity key for a
// raw event. LowConfidence marks keys built from degraded inputs (for
// example a zero-amount bank record with no counterparty); the resolver
// links such identities at reduced confidence instead of failing ingestion.
type FingerprintResult struct {
	Key           string
	Kind          IdentityKind
	LowConfidence bool
	Reason        string
}

// Fingerprint maps a raw event to its identity key. It is a pure function:
// same event and config always produce the same key, independent of which
// source reported the event first.
func Fingerprint(event RawEvent, cfg FingerprintConfig) (FingerprintResult, error) {
	switch event.Kind {
	case EventKindBankTxn:
		return bankFingerprint(event, cfg), nil
	case EventKindPayout:
		return payoutFingerprint(event.Source, event.ExternalID), nil
	case EventKindBalanceTxn:
		return balanceFingerprint(event)
	case EventKindOpsPayment:
		return opsFingerprint(event, IdentityKindPayment), nil
	case EventKindOpsInvoice:
		return opsFingerprint(event, IdentityKindInvoice), nil
	default:
		return FingerprintResult{}, fmt.Errorf("%w: %q", ErrInvalidEventKind, event.Kind)
	}
}

func bankFingerprint(event RawEvent, cfg FingerprintConfig) FingerprintResult {
	counterparty := NormalizeCounterparty(event.Counterparty, cfg.StopTokens)
	result := FingerprintResult{
		Kind: IdentityKindSettlement,
	}
	if event.AmountMinor == 0 && counterparty == "" {
		result.LowConfidence = true
		result.Reason = "zero amount and empty counterparty"
	}
	amount := event.AmountMinor
	if amount < 0 {
		amount = -amount
	}
	result.Key = hashKey(
		"bank",
		strings.TrimSpace(event.AccountRef),
		strconv.FormatInt(amount, 10),
		event.OccurredAt.UTC().Format("2006-01-02"),
		counterparty,
	)
	return result
}

func payoutFingerprint(source EventSource, payoutID string) FingerprintResult {
	// Payout identifiers are already globally unique per provider; no date
	// component is needed.
	return FingerprintResult{
		Key:  hashKey("payout", string(source), strings.TrimSpace(payoutID)),
		Kind: IdentityKindPayout,
	}
}

func balanceFingerprint(event RawEvent) (FingerprintResult, error) {
	subType := strings.TrimSpace(strings.ToLower(event.SubType))
	switch subType {
	case SubTypePayout:
		// A payout-reference line is the same real-world event as the payout
		// record itself and must collapse onto its identity.
		payoutID := strings.TrimSpace(event.ParentExternalID)
		if payoutID == "" {
			payoutID = event.ExternalID
		}
		return payoutFingerprint(event.Source, payoutID), nil
	case SubTypeCharge, SubTypeFee, SubTypeRefund:
		return FingerprintResult{
			Key:  hashKey(subType, string(event.Source), strings.TrimSpace(event.ExternalID)),
			Kind: balanceIdentityKind(subType),
		}, nil
	default:
		return FingerprintResult{}, fmt.Errorf("%w: balance sub-type %q", ErrMalformedEvent, event.SubType)
	}
}

func opsFingerprint(event RawEvent, kind IdentityKind) FingerprintResult {
	return FingerprintResult{
		Key:  hashKey(string(event.Kind), string(event.Source), strings.TrimSpace(event.ExternalID)),
		Kind: kind,
	}
}

func balanceIdentityKind(subType string) IdentityKind {
	switch subType {
	case SubTypeCharge:
		return IdentityKindCharge
	case SubTypeFee:
		return IdentityKindFee
	case SubTypeRefund:
		return IdentityKindRefund
	default:
		return IdentityKindCharge
	}
}

// NormalizeCounterparty lowercases, strips punctuation, collapses
// whitespace, and removes processor boilerplate tokens so descriptions from
// different banks converge on the same normalized form.
func NormalizeCounterparty(value string, stopTokens []string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if lowered == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		default:
			builder.WriteRune(' ')
		}
	}
	stop := make(map[string]struct{}, len(stopTokens))
	for _, token := range stopTokens {
		trimmed := strings.TrimSpace(strings.ToLower(token))
		if trimmed == "" {
			continue
		}
		stop[trimmed] = struct{}{}
	}
	kept := make([]string, 0, 8)
	for _, token := range strings.Fields(builder.String()) {
		if _, skip := stop[token]; skip {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// CounterpartyTokens returns the normalized token set used for similarity
// scoring between descriptors.
func CounterpartyTokens(value string, stopTokens []string) []string {
	normalized := NormalizeCounterparty(value, stopTokens)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
