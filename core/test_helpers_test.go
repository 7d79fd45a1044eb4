package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// In-memory stores backing service-level tests. They honor the same
// uniqueness rules the SQL stores enforce with constraints.

type memStores struct {
	mu         sync.Mutex
	events     map[string]RawEvent
	eventKeys  map[string]string
	identities map[string]Identity
	byPrint    map[string]string
	links      []IdentityLink
	edges      []IdentityEdge
	ledger     map[string]CashLedgerEntry
	exceptions map[string]Exception
	activity   []ActivityEntry
	facts      map[string]IdentityFact
}

func newMemStores() *memStores {
	return &memStores{
		events:     map[string]RawEvent{},
		eventKeys:  map[string]string{},
		identities: map[string]Identity{},
		byPrint:    map[string]string{},
		ledger:     map[string]CashLedgerEntry{},
		exceptions: map[string]Exception{},
		facts:      map[string]IdentityFact{},
	}
}

func (m *memStores) EventStore() EventStore         { return (*memEventStore)(m) }
func (m *memStores) IdentityStore() IdentityStore   { return (*memIdentityStore)(m) }
func (m *memStores) EdgeStore() EdgeStore           { return (*memEdgeStore)(m) }
func (m *memStores) LedgerStore() LedgerStore       { return (*memLedgerStore)(m) }
func (m *memStores) ExceptionStore() ExceptionStore { return (*memExceptionStore)(m) }
func (m *memStores) ActivityStore() ActivityStore   { return (*memActivityStore)(m) }
func (m *memStores) FactReader() FactReader         { return (*memFactReader)(m) }

// setFact registers the matcher projection for an identity; tests that do
// not exercise ingestion seed facts directly.
func (m *memStores) setFact(fact IdentityFact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[fact.Identity.ID] = fact.Identity
	m.byPrint[fact.Identity.TenantID+"::"+fact.Identity.Fingerprint] = fact.Identity.ID
	m.facts[fact.Identity.ID] = fact
}

type memEventStore memStores

func (s *memEventStore) Insert(_ context.Context, event RawEvent) (RawEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.NaturalKey()
	if existingID, ok := s.eventKeys[key]; ok {
		return s.events[existingID], false, nil
	}
	s.eventKeys[key] = event.ID
	s.events[event.ID] = event
	return event, true, nil
}

func (s *memEventStore) Get(_ context.Context, id string) (RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return RawEvent{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return event, nil
}

func (s *memEventStore) ListByIDs(_ context.Context, ids []string) ([]RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RawEvent, 0, len(ids))
	for _, id := range ids {
		if event, ok := s.events[id]; ok {
			out = append(out, event)
		}
	}
	return out, nil
}

type memIdentityStore memStores

func (s *memIdentityStore) InsertOrFetch(_ context.Context, identity Identity) (Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identity.TenantID + "::" + identity.Fingerprint
	if existingID, ok := s.byPrint[key]; ok {
		return s.identities[existingID], false, nil
	}
	s.byPrint[key] = identity.ID
	s.identities[identity.ID] = identity
	return identity, true, nil
}

func (s *memIdentityStore) Get(_ context.Context, id string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrIdentityNotFound, id)
	}
	return identity, nil
}

func (s *memIdentityStore) GetByFingerprint(_ context.Context, tenantID string, fingerprint string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPrint[tenantID+"::"+fingerprint]
	if !ok {
		return Identity{}, fmt.Errorf("%w: fingerprint %s", ErrIdentityNotFound, fingerprint)
	}
	return s.identities[id], nil
}

func (s *memIdentityStore) ListByKinds(_ context.Context, tenantID string, kinds []IdentityKind, since time.Time) ([]Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[IdentityKind]struct{}{}
	for _, kind := range kinds {
		wanted[kind] = struct{}{}
	}
	out := []Identity{}
	for _, identity := range s.identities {
		if identity.TenantID != tenantID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[identity.Kind]; !ok {
				continue
			}
		}
		if !since.IsZero() && identity.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memIdentityStore) Touch(_ context.Context, ids []string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if identity, ok := s.identities[id]; ok {
			identity.UpdatedAt = now
			s.identities[id] = identity
			if fact, ok := s.facts[id]; ok {
				fact.Identity = identity
				s.facts[id] = fact
			}
		}
	}
	return nil
}

func (s *memIdentityStore) InsertLink(_ context.Context, link IdentityLink) (IdentityLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.IdentityID == link.IdentityID && existing.RawEventID == link.RawEventID {
			return existing, nil
		}
	}
	s.links = append(s.links, link)
	return link, nil
}

func (s *memIdentityStore) ListLinks(_ context.Context, identityID string) ([]IdentityLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []IdentityLink{}
	for _, link := range s.links {
		if link.IdentityID == identityID {
			out = append(out, link)
		}
	}
	return out, nil
}

type memEdgeStore memStores

func (s *memEdgeStore) InsertIfAbsent(_ context.Context, edge IdentityEdge) (IdentityEdge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.edges {
		if existing.FromIdentityID == edge.FromIdentityID &&
			existing.ToIdentityID == edge.ToIdentityID &&
			existing.Type == edge.Type {
			return existing, false, nil
		}
	}
	s.edges = append(s.edges, edge)
	return edge, true, nil
}

func (s *memEdgeStore) ListFrom(_ context.Context, identityID string, types ...EdgeType) ([]IdentityEdge, error) {
	return s.list(func(edge IdentityEdge) bool {
		return edge.FromIdentityID == identityID && edgeTypeMatches(edge.Type, types)
	})
}

func (s *memEdgeStore) ListTo(_ context.Context, identityID string, types ...EdgeType) ([]IdentityEdge, error) {
	return s.list(func(edge IdentityEdge) bool {
		return edge.ToIdentityID == identityID && edgeTypeMatches(edge.Type, types)
	})
}

func (s *memEdgeStore) ListByTenant(_ context.Context, tenantID string) ([]IdentityEdge, error) {
	return s.list(func(edge IdentityEdge) bool {
		return edge.TenantID == tenantID
	})
}

func (s *memEdgeStore) list(match func(IdentityEdge) bool) ([]IdentityEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []IdentityEdge{}
	for _, edge := range s.edges {
		if match(edge) {
			out = append(out, edge)
		}
	}
	return out, nil
}

func edgeTypeMatches(edgeType EdgeType, types []EdgeType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == edgeType {
			return true
		}
	}
	return false
}

type memLedgerStore memStores

func (s *memLedgerStore) InsertIfAbsent(_ context.Context, entry CashLedgerEntry) (CashLedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.ledger[entry.IdentityID]; ok {
		return existing, false, nil
	}
	s.ledger[entry.IdentityID] = entry
	return entry, true, nil
}

func (s *memLedgerStore) GetByIdentity(_ context.Context, identityID string) (CashLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.ledger[identityID]
	if !ok {
		return CashLedgerEntry{}, fmt.Errorf("%w: identity %s", ErrLedgerEntryNotFound, identityID)
	}
	return entry, nil
}

func (s *memLedgerStore) ListByTenant(_ context.Context, tenantID string, from time.Time, to time.Time) ([]CashLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []CashLedgerEntry{}
	for _, entry := range s.ledger {
		if entry.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && entry.PostedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.PostedAt.After(to) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

type memExceptionStore memStores

func (s *memExceptionStore) UpsertOpen(_ context.Context, exception Exception) (Exception, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.exceptions {
		if existing.TenantID == exception.TenantID &&
			existing.DedupeKey == exception.DedupeKey &&
			existing.Status == ExceptionStatusOpen {
			existing.Context = exception.Context
			existing.UpdatedAt = exception.UpdatedAt
			s.exceptions[id] = existing
			return existing, false, nil
		}
	}
	s.exceptions[exception.ID] = exception
	return exception, true, nil
}

func (s *memExceptionStore) Get(_ context.Context, id string) (Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exception, ok := s.exceptions[id]
	if !ok {
		return Exception{}, fmt.Errorf("%w: %s", ErrExceptionNotFound, id)
	}
	return exception, nil
}

func (s *memExceptionStore) MarkResolved(_ context.Context, id string, resolvedBy string, now time.Time) (Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exception, ok := s.exceptions[id]
	if !ok {
		return Exception{}, fmt.Errorf("%w: %s", ErrExceptionNotFound, id)
	}
	if exception.Status == ExceptionStatusResolved {
		return Exception{}, fmt.Errorf("%w: %s", ErrExceptionAlreadyResolved, id)
	}
	if err := exception.TransitionTo(ExceptionStatusResolved, resolvedBy, now); err != nil {
		return Exception{}, err
	}
	s.exceptions[id] = exception
	return exception, nil
}

func (s *memExceptionStore) ListOpen(_ context.Context, tenantID string, kind ExceptionKind) ([]Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Exception{}
	for _, exception := range s.exceptions {
		if exception.TenantID != tenantID || exception.Status != ExceptionStatusOpen {
			continue
		}
		if kind != "" && exception.Kind != kind {
			continue
		}
		out = append(out, exception)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memActivityStore memStores

func (s *memActivityStore) Append(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, entry)
	return nil
}

func (s *memActivityStore) List(_ context.Context, tenantID string, limit int) ([]ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ActivityEntry{}
	for _, entry := range s.activity {
		if entry.TenantID != tenantID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memFactReader memStores

func (s *memFactReader) ListFacts(_ context.Context, tenantID string, kinds []IdentityKind, since time.Time) ([]IdentityFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[IdentityKind]struct{}{}
	for _, kind := range kinds {
		wanted[kind] = struct{}{}
	}
	out := []IdentityFact{}
	for _, fact := range s.facts {
		if fact.Identity.TenantID != tenantID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[fact.Identity.Kind]; !ok {
				continue
			}
		}
		if !since.IsZero() && fact.Identity.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, fact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.ID < out[j].Identity.ID })
	return out, nil
}

func (s *memFactReader) ListFactsByIDs(_ context.Context, tenantID string, ids []string) ([]IdentityFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []IdentityFact{}
	for _, id := range ids {
		fact, ok := s.facts[id]
		if !ok || fact.Identity.TenantID != tenantID {
			continue
		}
		out = append(out, fact)
	}
	return out, nil
}

func newTestService(t interface{ Fatalf(string, ...any) }, stores *memStores) *Service {
	service, err := NewService(Config{},
		WithRepositoryFactory(StoreProvider(stores)),
		WithMetricsRecorder(NopMetricsRecorder{}),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return service
}

func testFact(id string, tenantID string, kind IdentityKind, amount int64, occurredAt time.Time) IdentityFact {
	return IdentityFact{
		Identity: Identity{
			ID:          id,
			TenantID:    tenantID,
			Fingerprint: "fp-" + id,
			Kind:        kind,
			CreatedAt:   occurredAt,
			UpdatedAt:   occurredAt,
		},
		AmountMinor: amount,
		Currency:    "USD",
		OccurredAt:  occurredAt,
		RawEventIDs: []string{"evt-" + id},
	}
}
