package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"
)

func newRawEventRecord(event core.RawEvent, now time.Time) *rawEventRecord {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &rawEventRecord{
		ID:               strings.TrimSpace(event.ID),
		TenantID:         strings.TrimSpace(event.TenantID),
		Source:           strings.TrimSpace(strings.ToLower(string(event.Source))),
		Kind:             strings.TrimSpace(strings.ToLower(string(event.Kind))),
		ExternalID:       strings.TrimSpace(event.ExternalID),
		OccurredAt:       event.OccurredAt.UTC(),
		AmountMinor:      event.AmountMinor,
		Currency:         strings.ToUpper(strings.TrimSpace(event.Currency)),
		AccountRef:       strings.TrimSpace(event.AccountRef),
		Counterparty:     strings.TrimSpace(event.Counterparty),
		ParentExternalID: strings.TrimSpace(event.ParentExternalID),
		SubType:          strings.TrimSpace(strings.ToLower(event.SubType)),
		Payload:          copyAnyMap(event.Payload),
		CreatedAt:        createdAt.UTC(),
	}
}

func (r *rawEventRecord) toDomain() core.RawEvent {
	if r == nil {
		return core.RawEvent{}
	}
	return core.RawEvent{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Source:           core.EventSource(r.Source),
		Kind:             core.EventKind(r.Kind),
		ExternalID:       r.ExternalID,
		OccurredAt:       r.OccurredAt,
		AmountMinor:      r.AmountMinor,
		Currency:         r.Currency,
		AccountRef:       r.AccountRef,
		Counterparty:     r.Counterparty,
		ParentExternalID: r.ParentExternalID,
		SubType:          r.SubType,
		Payload:          copyAnyMap(r.Payload),
		CreatedAt:        r.CreatedAt,
	}
}

func newIdentityRecord(identity core.Identity, now time.Time) *identityRecord {
	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := identity.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return &identityRecord{
		ID:            strings.TrimSpace(identity.ID),
		TenantID:      strings.TrimSpace(identity.TenantID),
		Fingerprint:   strings.TrimSpace(identity.Fingerprint),
		Kind:          strings.TrimSpace(strings.ToLower(string(identity.Kind))),
		LowConfidence: identity.LowConfidence,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     updatedAt.UTC(),
	}
}

func (r *identityRecord) toDomain() core.Identity {
	if r == nil {
		return core.Identity{}
	}
	return core.Identity{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Fingerprint:   r.Fingerprint,
		Kind:          core.IdentityKind(r.Kind),
		LowConfidence: r.LowConfidence,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func newIdentityLinkRecord(link core.IdentityLink, now time.Time) *identityLinkRecord {
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &identityLinkRecord{
		ID:         strings.TrimSpace(link.ID),
		IdentityID: strings.TrimSpace(link.IdentityID),
		RawEventID: strings.TrimSpace(link.RawEventID),
		Confidence: link.Confidence,
		Reason:     strings.TrimSpace(link.Reason),
		CreatedAt:  createdAt.UTC(),
	}
}

func (r *identityLinkRecord) toDomain() core.IdentityLink {
	if r == nil {
		return core.IdentityLink{}
	}
	return core.IdentityLink{
		ID:         r.ID,
		IdentityID: r.IdentityID,
		RawEventID: r.RawEventID,
		Confidence: r.Confidence,
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}
}

func newIdentityEdgeRecord(edge core.IdentityEdge, now time.Time) *identityEdgeRecord {
	createdAt := edge.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &identityEdgeRecord{
		ID:             strings.TrimSpace(edge.ID),
		TenantID:       strings.TrimSpace(edge.TenantID),
		FromIdentityID: strings.TrimSpace(edge.FromIdentityID),
		ToIdentityID:   strings.TrimSpace(edge.ToIdentityID),
		EdgeType:       string(edge.Type),
		Confidence:     edge.Confidence,
		Origin:         string(edge.Origin),
		Reason:         strings.TrimSpace(edge.Reason),
		CreatedAt:      createdAt.UTC(),
	}
}

func (r *identityEdgeRecord) toDomain() core.IdentityEdge {
	if r == nil {
		return core.IdentityEdge{}
	}
	return core.IdentityEdge{
		ID:             r.ID,
		TenantID:       r.TenantID,
		FromIdentityID: r.FromIdentityID,
		ToIdentityID:   r.ToIdentityID,
		Type:           core.EdgeType(r.EdgeType),
		Confidence:     r.Confidence,
		Origin:         core.EdgeOrigin(r.Origin),
		Reason:         r.Reason,
		CreatedAt:      r.CreatedAt,
	}
}

func newLedgerEntryRecord(entry core.CashLedgerEntry, now time.Time) *ledgerEntryRecord {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &ledgerEntryRecord{
		ID:                strings.TrimSpace(entry.ID),
		TenantID:          strings.TrimSpace(entry.TenantID),
		IdentityID:        strings.TrimSpace(entry.IdentityID),
		PostedAt:          entry.PostedAt.UTC(),
		Direction:         string(entry.Direction),
		AmountMinor:       entry.AmountMinor,
		Currency:          strings.ToUpper(strings.TrimSpace(entry.Currency)),
		ClassificationKey: strings.TrimSpace(entry.ClassificationKey),
		Provenance:        structToMap(entry.Provenance),
		CreatedAt:         createdAt.UTC(),
	}
}

func (r *ledgerEntryRecord) toDomain() core.CashLedgerEntry {
	if r == nil {
		return core.CashLedgerEntry{}
	}
	entry := core.CashLedgerEntry{
		ID:                r.ID,
		TenantID:          r.TenantID,
		IdentityID:        r.IdentityID,
		PostedAt:          r.PostedAt,
		Direction:         core.LedgerDirection(r.Direction),
		AmountMinor:       r.AmountMinor,
		Currency:          r.Currency,
		ClassificationKey: r.ClassificationKey,
		CreatedAt:         r.CreatedAt,
	}
	mapToStruct(r.Provenance, &entry.Provenance)
	return entry
}

func newExceptionRecord(exception core.Exception, now time.Time) *exceptionRecord {
	createdAt := exception.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := exception.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	record := &exceptionRecord{
		ID:         strings.TrimSpace(exception.ID),
		TenantID:   strings.TrimSpace(exception.TenantID),
		Kind:       string(exception.Kind),
		Status:     string(exception.Status),
		DedupeKey:  strings.TrimSpace(exception.DedupeKey),
		Context:    structToMap(exception.Context),
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  updatedAt.UTC(),
		ResolvedBy: strings.TrimSpace(exception.ResolvedBy),
	}
	if exception.ResolvedAt != nil {
		resolvedAt := exception.ResolvedAt.UTC()
		record.ResolvedAt = &resolvedAt
	}
	return record
}

func (r *exceptionRecord) toDomain() core.Exception {
	if r == nil {
		return core.Exception{}
	}
	exception := core.Exception{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Kind:       core.ExceptionKind(r.Kind),
		Status:     core.ExceptionStatus(r.Status),
		DedupeKey:  r.DedupeKey,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		ResolvedBy: r.ResolvedBy,
	}
	if r.ResolvedAt != nil {
		resolvedAt := *r.ResolvedAt
		exception.ResolvedAt = &resolvedAt
	}
	mapToStruct(r.Context, &exception.Context)
	return exception
}

func newActivityEntryRecord(entry core.ActivityEntry, now time.Time) *activityEntryRecord {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	metadata := copyAnyMap(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &activityEntryRecord{
		ID:         strings.TrimSpace(entry.ID),
		TenantID:   strings.TrimSpace(entry.TenantID),
		Actor:      strings.TrimSpace(entry.Actor),
		Action:     strings.TrimSpace(entry.Action),
		IdentityID: strings.TrimSpace(entry.IdentityID),
		Status:     string(entry.Status),
		Metadata:   metadata,
		CreatedAt:  createdAt.UTC(),
	}
}

func (r *activityEntryRecord) toDomain() core.ActivityEntry {
	if r == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Actor:      r.Actor,
		Action:     r.Action,
		IdentityID: r.IdentityID,
		Status:     core.ActivityStatus(r.Status),
		Metadata:   copyAnyMap(r.Metadata),
		CreatedAt:  r.CreatedAt,
	}
}

// structToMap round-trips a typed payload into the map shape bun stores as
// jsonb. Lossy only for fields json itself cannot express.
func structToMap(value any) map[string]any {
	data, err := json.Marshal(value)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func mapToStruct(value map[string]any, target any) {
	if len(value) == 0 || target == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, target)
}

func copyAnyMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
