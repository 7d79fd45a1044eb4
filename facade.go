package reconcile

import (
	"fmt"

	reconcilecommand "github.com/goliatone/go-reconcile/command"
	"github.com/goliatone/go-reconcile/core"
	reconcilequery "github.com/goliatone/go-reconcile/query"
)

// CommandQueryService is the engine surface the facade wraps: the four
// mutations plus the read side.
type CommandQueryService interface {
	reconcilecommand.MutatingService
	reconcilequery.PayoutStatusReader
	reconcilequery.ExceptionReader
	reconcilequery.ProvenanceReader
}

type Commands struct {
	IngestBatch      *reconcilecommand.IngestBatchCommand
	RunMatchers      *reconcilecommand.RunMatchersCommand
	Consolidate      *reconcilecommand.ConsolidateCommand
	ResolveException *reconcilecommand.ResolveExceptionCommand
}

type Queries struct {
	ListPayoutStatuses    *reconcilequery.ListPayoutStatusesQuery
	ListOpenExceptions    *reconcilequery.ListOpenExceptionsQuery
	GetIdentityProvenance *reconcilequery.GetIdentityProvenanceQuery
	ListActivity          *reconcilequery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader reconcilequery.ActivityReader
}

func WithActivityReader(reader reconcilequery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("reconcile: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestBatch:      reconcilecommand.NewIngestBatchCommand(service),
		RunMatchers:      reconcilecommand.NewRunMatchersCommand(service),
		Consolidate:      reconcilecommand.NewConsolidateCommand(service),
		ResolveException: reconcilecommand.NewResolveExceptionCommand(service),
	}
	facade.queries = Queries{
		ListPayoutStatuses:    reconcilequery.NewListPayoutStatusesQuery(service),
		ListOpenExceptions:    reconcilequery.NewListOpenExceptionsQuery(service),
		GetIdentityProvenance: reconcilequery.NewGetIdentityProvenanceQuery(service),
		ListActivity:          reconcilequery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader falls back to the service's own activity store when
// no explicit reader is installed.
func resolveActivityReader(service CommandQueryService) reconcilequery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(reconcilequery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.ActivityStore == nil {
		return nil
	}
	return deps.ActivityStore
}
