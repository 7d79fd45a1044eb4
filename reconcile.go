package reconcile

import "github.com/goliatone/go-reconcile/core"

type Config = core.Config

type MatcherConfig = core.MatcherConfig

type FingerprintConfig = core.FingerprintConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type EventStore = core.EventStore
type IdentityStore = core.IdentityStore
type EdgeStore = core.EdgeStore
type LedgerStore = core.LedgerStore
type ExceptionStore = core.ExceptionStore
type ActivityStore = core.ActivityStore
type FactReader = core.FactReader
type MetricsRecorder = core.MetricsRecorder

type IngestBatchInput = core.IngestBatchInput
type ConsolidateInput = core.ConsolidateInput

type ResolveExceptionInput = core.ResolveExceptionInput

type PayoutStatusFilter = core.PayoutStatusFilter

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithEventStore        = core.WithEventStore
	WithIdentityStore     = core.WithIdentityStore
	WithEdgeStore         = core.WithEdgeStore
	WithLedgerStore       = core.WithLedgerStore
	WithExceptionStore    = core.WithExceptionStore
	WithActivityStore     = core.WithActivityStore
	WithFactReader        = core.WithFactReader
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
