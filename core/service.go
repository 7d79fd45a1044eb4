package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service is the orchestration surface for ingestion, matching,
// consolidation, and exception review. Matcher and consolidation passes for
// one tenant run serially; passes for different tenants may overlap.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	eventStore        EventStore
	identityStore     IdentityStore
	edgeStore         EdgeStore
	ledgerStore       LedgerStore
	exceptionStore    ExceptionStore
	activityStore     ActivityStore
	factReader        FactReader
	resolver          *IdentityResolver
	consolidator      *Consolidator
	exceptionManager  *ExceptionManager

	tenantLocks sync.Map
	now         func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	EventStore        EventStore
	IdentityStore     IdentityStore
	EdgeStore         EdgeStore
	LedgerStore       LedgerStore
	ExceptionStore    ExceptionStore
	ActivityStore     ActivityStore
	FactReader        FactReader
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("reconcile", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("reconcile"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil && missingStores(builder) {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if asProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = asProvider
		}
		if storeProvider != nil {
			adoptStores(&builder, storeProvider)
		}
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		eventStore:        builder.eventStore,
		identityStore:     builder.identityStore,
		edgeStore:         builder.edgeStore,
		ledgerStore:       builder.ledgerStore,
		exceptionStore:    builder.exceptionStore,
		activityStore:     builder.activityStore,
		factReader:        builder.factReader,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	if builder.identityStore != nil {
		resolver, resolverErr := NewIdentityResolver(builder.identityStore)
		if resolverErr != nil {
			return nil, mapBuildError(builder.errorMapper, resolverErr)
		}
		service.resolver = resolver
	}
	if builder.exceptionStore != nil {
		manager, managerErr := NewExceptionManager(builder.exceptionStore, builder.edgeStore, builder.identityStore)
		if managerErr != nil {
			return nil, mapBuildError(builder.errorMapper, managerErr)
		}
		service.exceptionManager = manager
	}
	if builder.factReader != nil && builder.edgeStore != nil && builder.ledgerStore != nil {
		consolidator, consolidatorErr := NewConsolidator(
			builder.factReader,
			builder.edgeStore,
			builder.ledgerStore,
			service.exceptionManager,
		)
		if consolidatorErr != nil {
			return nil, mapBuildError(builder.errorMapper, consolidatorErr)
		}
		service.consolidator = consolidator
	}
	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func missingStores(builder serviceBuilder) bool {
	return builder.eventStore == nil ||
		builder.identityStore == nil ||
		builder.edgeStore == nil ||
		builder.ledgerStore == nil ||
		builder.exceptionStore == nil ||
		builder.activityStore == nil ||
		builder.factReader == nil
}

func adoptStores(builder *serviceBuilder, provider StoreProvider) {
	if builder.eventStore == nil {
		builder.eventStore = provider.EventStore()
	}
	if builder.identityStore == nil {
		builder.identityStore = provider.IdentityStore()
	}
	if builder.edgeStore == nil {
		builder.edgeStore = provider.EdgeStore()
	}
	if builder.ledgerStore == nil {
		builder.ledgerStore = provider.LedgerStore()
	}
	if builder.exceptionStore == nil {
		builder.exceptionStore = provider.ExceptionStore()
	}
	if builder.activityStore == nil {
		builder.activityStore = provider.ActivityStore()
	}
	if builder.factReader == nil {
		builder.factReader = provider.FactReader()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		EventStore:        s.eventStore,
		IdentityStore:     s.identityStore,
		EdgeStore:         s.edgeStore,
		LedgerStore:       s.ledgerStore,
		ExceptionStore:    s.exceptionStore,
		ActivityStore:     s.activityStore,
		FactReader:        s.factReader,
	}
}

// IngestBatch stores a batch of raw events and resolves each one to its
// identity. The batch is not transactional: malformed events are reported in
// the result and the rest of the batch proceeds. Re-sending the same
// external ids is a dedupe no-op.
func (s *Service) IngestBatch(ctx context.Context, in IngestBatchInput) (result IngestBatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   in.TenantID,
		"event_count": len(in.Events),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "ingest_batch", err, fields)
	}()

	if s == nil || s.eventStore == nil || s.resolver == nil {
		err = s.mapError(fmt.Errorf("core: event store and identity store are required for ingestion"))
		return IngestBatchResult{}, err
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		err = s.mapError(ErrTenantRequired)
		return IngestBatchResult{}, err
	}

	for _, event := range in.Events {
		event.TenantID = tenantID
		if validateErr := event.Validate(); validateErr != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				ExternalID: event.ExternalID,
				Reason:     validateErr.Error(),
			})
			continue
		}
		fingerprint, fingerprintErr := Fingerprint(event, s.config.Fingerprint)
		if fingerprintErr != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				ExternalID: event.ExternalID,
				Reason:     fingerprintErr.Error(),
			})
			continue
		}
		if strings.TrimSpace(event.ID) == "" {
			event.ID = uuid.NewString()
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = s.now()
		}
		stored, created, insertErr := s.eventStore.Insert(ctx, event)
		if insertErr != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				ExternalID: event.ExternalID,
				Reason:     insertErr.Error(),
			})
			continue
		}
		if !created {
			// A prior delivery may have stored the event and then failed
			// before linking it. Resolving again is idempotent on both the
			// identity and the link, so redelivery heals the gap.
			replayPrint, replayErr := Fingerprint(stored, s.config.Fingerprint)
			if replayErr == nil {
				_, _, _, replayErr = s.resolver.Resolve(ctx, stored, replayPrint)
			}
			if replayErr != nil {
				result.Failed++
				result.Failures = append(result.Failures, RecordFailure{
					ExternalID: event.ExternalID,
					Reason:     replayErr.Error(),
				})
				continue
			}
			result.Deduplicated++
			continue
		}
		_, link, _, resolveErr := s.resolver.Resolve(ctx, stored, fingerprint)
		if resolveErr != nil {
			result.Failed++
			result.Failures = append(result.Failures, RecordFailure{
				ExternalID: event.ExternalID,
				Reason:     resolveErr.Error(),
			})
			continue
		}
		result.Stored++
		result.Links = append(result.Links, link)
	}

	fields["stored"] = result.Stored
	fields["deduplicated"] = result.Deduplicated
	fields["failed"] = result.Failed
	return result, nil
}

// RunMatchers executes the settlement, composition, and ops-payment matchers
// over the tenant's current graph and persists the resulting edges and
// exceptions. Runs for the same tenant are serialized; a re-run over an
// unchanged graph writes nothing new.
func (s *Service) RunMatchers(ctx context.Context, tenantID string) (result MatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "run_matchers", err, fields)
	}()

	if s == nil || s.factReader == nil || s.edgeStore == nil || s.exceptionManager == nil {
		err = s.mapError(fmt.Errorf("core: fact reader, edge store, and exception store are required for matching"))
		return MatchResult{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		err = s.mapError(ErrTenantRequired)
		return MatchResult{}, err
	}

	unlock := s.lockTenant(tenantID)
	defer unlock()

	facts, loadErr := s.factReader.ListFacts(ctx, tenantID, nil, time.Time{})
	if loadErr != nil {
		err = s.mapError(loadErr)
		return MatchResult{}, err
	}
	edges, edgesErr := s.edgeStore.ListByTenant(ctx, tenantID)
	if edgesErr != nil {
		err = s.mapError(edgesErr)
		return MatchResult{}, err
	}

	byKind := partitionFacts(facts)
	proposals := MatchProposals{}
	settlementPass := MatchSettlements(
		byKind[IdentityKindPayout], byKind[IdentityKindSettlement],
		edges, s.config.Matcher, s.config.Fingerprint,
	)
	proposals.merge(settlementPass)

	parts := append(append(byKind[IdentityKindCharge], byKind[IdentityKindFee]...), byKind[IdentityKindRefund]...)
	compositionPass := MatchComposition(byKind[IdentityKindPayout], parts, edges, s.config.Matcher)
	proposals.merge(compositionPass)

	opsPass := MatchOpsPayments(
		byKind[IdentityKindPayment], byKind[IdentityKindCharge],
		edges, s.config.Matcher, s.config.Fingerprint,
	)
	proposals.merge(opsPass)

	result, err = s.persistProposals(ctx, tenantID, "matcher", proposals)
	if err != nil {
		return MatchResult{}, err
	}
	fields["edges"] = len(result.Edges)
	fields["exceptions"] = len(result.Exceptions)
	return result, nil
}

// AgeExceptions runs the time-based passes: ghost detection over operational
// records and timing drift over in-transit payouts. Kept separate from
// RunMatchers so schedulers can age on a slower cadence.
func (s *Service) AgeExceptions(ctx context.Context, tenantID string) (result MatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "age_exceptions", err, fields)
	}()

	if s == nil || s.factReader == nil || s.edgeStore == nil || s.exceptionManager == nil {
		err = s.mapError(fmt.Errorf("core: fact reader, edge store, and exception store are required for aging"))
		return MatchResult{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		err = s.mapError(ErrTenantRequired)
		return MatchResult{}, err
	}

	unlock := s.lockTenant(tenantID)
	defer unlock()

	facts, loadErr := s.factReader.ListFacts(ctx, tenantID, nil, time.Time{})
	if loadErr != nil {
		err = s.mapError(loadErr)
		return MatchResult{}, err
	}
	edges, edgesErr := s.edgeStore.ListByTenant(ctx, tenantID)
	if edgesErr != nil {
		err = s.mapError(edgesErr)
		return MatchResult{}, err
	}

	byKind := partitionFacts(facts)
	now := s.now()
	proposals := MatchProposals{}
	opsFacts := append(append([]IdentityFact(nil), byKind[IdentityKindPayment]...), byKind[IdentityKindInvoice]...)
	proposals.merge(DetectGhosts(opsFacts, edges, s.config.Matcher, now))
	proposals.merge(AgeInTransitPayouts(byKind[IdentityKindPayout], edges, s.config.Matcher, now))

	result, err = s.persistProposals(ctx, tenantID, "aging", proposals)
	if err != nil {
		return MatchResult{}, err
	}
	fields["exceptions"] = len(result.Exceptions)
	return result, nil
}

// Consolidate runs one ledger consolidation pass for the tenant.
func (s *Service) Consolidate(ctx context.Context, in ConsolidateInput) (result ConsolidateResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": in.TenantID,
		"since":     in.Since,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "consolidate", err, fields)
	}()

	if s == nil || s.consolidator == nil {
		err = s.mapError(fmt.Errorf("core: consolidator requires fact reader, edge store, and ledger store"))
		return ConsolidateResult{}, err
	}
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		err = s.mapError(ErrTenantRequired)
		return ConsolidateResult{}, err
	}
	in.TenantID = tenantID

	unlock := s.lockTenant(tenantID)
	defer unlock()

	result, runErr := s.consolidator.Run(ctx, in)
	if runErr != nil {
		err = s.mapError(runErr)
		return ConsolidateResult{}, err
	}
	fields["entries"] = len(result.Entries)
	fields["skipped"] = result.Skipped
	fields["failed"] = result.Failed
	return result, nil
}

// ResolveException applies a reviewer decision: the chosen edges are written
// with resolution origin, the exception closes, and every touched identity
// is rescheduled for the next consolidation pass.
func (s *Service) ResolveException(ctx context.Context, in ResolveExceptionInput) (result ResolveExceptionResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"exception_id": in.ExceptionID,
		"resolved_by":  in.ResolvedBy,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_exception", err, fields)
	}()

	if s == nil || s.exceptionManager == nil {
		err = s.mapError(fmt.Errorf("core: exception store is required for resolution"))
		return ResolveExceptionResult{}, err
	}
	result, resolveErr := s.exceptionManager.Resolve(ctx, in)
	if resolveErr != nil {
		err = s.mapError(resolveErr)
		return ResolveExceptionResult{}, err
	}
	s.appendActivity(ctx, ActivityEntry{
		TenantID:   result.Exception.TenantID,
		Actor:      strings.TrimSpace(in.ResolvedBy),
		Action:     "exception.resolved",
		IdentityID: result.Exception.Context.SubjectIdentityID,
		Status:     ActivityStatusOK,
		Metadata: map[string]any{
			"exception_id":   result.Exception.ID,
			"exception_kind": string(result.Exception.Kind),
			"edges_written":  len(result.Edges),
		},
	})
	fields["rescheduled"] = len(result.Rescheduled)
	return result, nil
}

// ListOpenExceptions returns the tenant's open review queue, optionally
// filtered by kind.
func (s *Service) ListOpenExceptions(ctx context.Context, tenantID string, kind ExceptionKind) ([]Exception, error) {
	if s == nil || s.exceptionStore == nil {
		return nil, s.mapError(fmt.Errorf("core: exception store is required"))
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, s.mapError(ErrTenantRequired)
	}
	if kind != "" {
		if err := kind.Validate(); err != nil {
			return nil, s.mapError(err)
		}
	}
	exceptions, err := s.exceptionStore.ListOpen(ctx, tenantID, kind)
	if err != nil {
		return nil, s.mapError(err)
	}
	return exceptions, nil
}

// ListPayoutStatuses reports per-payout settlement state for the review
// surface: settled, in transit, ambiguous (open ambiguous-match exception),
// or aged (open timing-drift exception).
func (s *Service) ListPayoutStatuses(ctx context.Context, filter PayoutStatusFilter) ([]PayoutStatus, error) {
	if s == nil || s.factReader == nil || s.edgeStore == nil || s.exceptionStore == nil {
		return nil, s.mapError(fmt.Errorf("core: fact reader, edge store, and exception store are required"))
	}
	tenantID := strings.TrimSpace(filter.TenantID)
	if tenantID == "" {
		return nil, s.mapError(ErrTenantRequired)
	}

	payouts, err := s.factReader.ListFacts(ctx, tenantID, []IdentityKind{IdentityKindPayout}, filter.From)
	if err != nil {
		return nil, s.mapError(err)
	}
	edges, err := s.edgeStore.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, s.mapError(err)
	}
	openExceptions, err := s.exceptionStore.ListOpen(ctx, tenantID, "")
	if err != nil {
		return nil, s.mapError(err)
	}

	settlesFrom := map[string]IdentityEdge{}
	for _, edge := range edges {
		if edge.Type == EdgeTypeSettles {
			settlesFrom[edge.FromIdentityID] = edge
		}
	}
	openBysubject := map[string]map[ExceptionKind]struct{}{}
	for _, exception := range openExceptions {
		subject := exception.Context.SubjectIdentityID
		if openBysubject[subject] == nil {
			openBysubject[subject] = map[ExceptionKind]struct{}{}
		}
		openBysubject[subject][exception.Kind] = struct{}{}
	}

	statuses := make([]PayoutStatus, 0, len(payouts))
	for _, payout := range payouts {
		if !filter.To.IsZero() && payout.OccurredAt.After(filter.To) {
			continue
		}
		status := PayoutStatus{
			Identity:    payout.Identity,
			State:       PayoutStateInTransit,
			AmountMinor: payout.AmountMinor,
			Currency:    payout.Currency,
		}
		if edge, settled := settlesFrom[payout.Identity.ID]; settled {
			status.State = PayoutStateSettled
			status.SettlementID = edge.ToIdentityID
			if s.ledgerStore != nil {
				if entry, ledgerErr := s.ledgerStore.GetByIdentity(ctx, payout.Identity.ID); ledgerErr == nil {
					postedAt := entry.PostedAt
					status.PostedAt = &postedAt
					status.AmountMinor = entry.AmountMinor
					status.Currency = entry.Currency
				}
			}
		} else if kinds, flagged := openBysubject[payout.Identity.ID]; flagged {
			if _, ambiguous := kinds[ExceptionKindAmbiguousMatch]; ambiguous {
				status.State = PayoutStateAmbiguous
			} else if _, aged := kinds[ExceptionKindTimingDrift]; aged {
				status.State = PayoutStateAged
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// GetIdentityProvenance assembles the full audit view for one identity:
// backing raw events, both edge directions, and the ledger entry if one has
// been recognized.
func (s *Service) GetIdentityProvenance(ctx context.Context, identityID string) (IdentityProvenance, error) {
	if s == nil || s.identityStore == nil || s.eventStore == nil || s.edgeStore == nil {
		return IdentityProvenance{}, s.mapError(fmt.Errorf("core: identity, event, and edge stores are required"))
	}
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return IdentityProvenance{}, s.mapError(fmt.Errorf("%w: identity id is required", ErrIdentityNotFound))
	}

	identity, err := s.identityStore.Get(ctx, identityID)
	if err != nil {
		return IdentityProvenance{}, s.mapError(err)
	}
	links, err := s.identityStore.ListLinks(ctx, identityID)
	if err != nil {
		return IdentityProvenance{}, s.mapError(err)
	}
	eventIDs := make([]string, 0, len(links))
	for _, link := range links {
		eventIDs = append(eventIDs, link.RawEventID)
	}
	events, err := s.eventStore.ListByIDs(ctx, eventIDs)
	if err != nil {
		return IdentityProvenance{}, s.mapError(err)
	}
	edgesOut, err := s.edgeStore.ListFrom(ctx, identityID)
	if err != nil {
		return IdentityProvenance{}, s.mapError(err)
	}
	edgesIn, err := s.edgeStore.ListTo(ctx, identityID)
	if err != nil {
		return IdentityProvenance{}, s.mapError(err)
	}

	provenance := IdentityProvenance{
		Identity: identity,
		Links:    links,
		Events:   events,
		EdgesOut: edgesOut,
		EdgesIn:  edgesIn,
	}
	if s.ledgerStore != nil {
		entry, ledgerErr := s.ledgerStore.GetByIdentity(ctx, identityID)
		switch {
		case ledgerErr == nil:
			provenance.LedgerEntry = &entry
		case errors.Is(ledgerErr, ErrLedgerEntryNotFound):
		default:
			return IdentityProvenance{}, s.mapError(ledgerErr)
		}
	}
	return provenance, nil
}

func (s *Service) persistProposals(
	ctx context.Context,
	tenantID string,
	actor string,
	proposals MatchProposals,
) (MatchResult, error) {
	result := MatchResult{}
	now := s.now()
	for _, proposal := range proposals.Edges {
		edge := IdentityEdge{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			FromIdentityID: proposal.FromIdentityID,
			ToIdentityID:   proposal.ToIdentityID,
			Type:           proposal.Type,
			Confidence:     proposal.Confidence,
			Origin:         EdgeOriginMatcher,
			Reason:         proposal.Reason,
			CreatedAt:      now,
		}
		written, created, err := s.edgeStore.InsertIfAbsent(ctx, edge)
		if err != nil {
			return MatchResult{}, s.mapError(err)
		}
		if !created {
			continue
		}
		result.Edges = append(result.Edges, written)
		s.appendActivity(ctx, ActivityEntry{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     "edge." + strings.ToLower(string(written.Type)),
			IdentityID: written.FromIdentityID,
			Status:     ActivityStatusOK,
			Metadata: map[string]any{
				"edge_id":    written.ID,
				"to":         written.ToIdentityID,
				"confidence": written.Confidence,
				"reason":     written.Reason,
			},
		})
	}
	for _, proposal := range proposals.Exceptions {
		exception, created, err := s.exceptionManager.Raise(ctx, tenantID, proposal)
		if err != nil {
			return MatchResult{}, s.mapError(err)
		}
		if !created {
			continue
		}
		result.Exceptions = append(result.Exceptions, exception)
		s.appendActivity(ctx, ActivityEntry{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     "exception.raised",
			IdentityID: proposal.SubjectIdentityID,
			Status:     ActivityStatusWarn,
			Metadata: map[string]any{
				"exception_id":   exception.ID,
				"exception_kind": string(exception.Kind),
				"detail":         proposal.Detail,
			},
		})
	}
	return result, nil
}

// appendActivity records an audit row. Audit failures are logged, never
// propagated: the primary write already happened.
func (s *Service) appendActivity(ctx context.Context, entry ActivityEntry) {
	if s == nil || s.activityStore == nil {
		return
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.activityStore.Append(ctx, entry); err != nil {
		s.logError(ctx, "activity append failed", map[string]any{
			"tenant_id": entry.TenantID,
			"action":    entry.Action,
			"error":     err.Error(),
		})
	}
}

func (s *Service) lockTenant(tenantID string) func() {
	value, _ := s.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	lock := value.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

func partitionFacts(facts []IdentityFact) map[IdentityKind][]IdentityFact {
	byKind := map[IdentityKind][]IdentityFact{}
	for _, fact := range facts {
		byKind[fact.Identity.Kind] = append(byKind[fact.Identity.Kind], fact)
	}
	return byKind
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
