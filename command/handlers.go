package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-reconcile/core"
)

type MutatingService interface {
	IngestBatch(ctx context.Context, in core.IngestBatchInput) (core.IngestBatchResult, error)
	RunMatchers(ctx context.Context, tenantID string) (core.MatchResult, error)
	Consolidate(ctx context.Context, in core.ConsolidateInput) (core.ConsolidateResult, error)
	ResolveException(ctx context.Context, in core.ResolveExceptionInput) (core.ResolveExceptionResult, error)
}

type IngestBatchCommand struct {
	service MutatingService
}

func NewIngestBatchCommand(service MutatingService) *IngestBatchCommand {
	return &IngestBatchCommand{service: service}
}

func (c *IngestBatchCommand) Execute(ctx context.Context, msg IngestBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	out, err := c.service.IngestBatch(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunMatchersCommand struct {
	service MutatingService
}

func NewRunMatchersCommand(service MutatingService) *RunMatchersCommand {
	return &RunMatchersCommand{service: service}
}

func (c *RunMatchersCommand) Execute(ctx context.Context, msg RunMatchersMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: matcher service is required")
	}
	out, err := c.service.RunMatchers(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConsolidateCommand struct {
	service MutatingService
}

func NewConsolidateCommand(service MutatingService) *ConsolidateCommand {
	return &ConsolidateCommand{service: service}
}

func (c *ConsolidateCommand) Execute(ctx context.Context, msg ConsolidateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consolidation service is required")
	}
	out, err := c.service.Consolidate(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveExceptionCommand struct {
	service MutatingService
}

func NewResolveExceptionCommand(service MutatingService) *ResolveExceptionCommand {
	return &ResolveExceptionCommand{service: service}
}

func (c *ResolveExceptionCommand) Execute(ctx context.Context, msg ResolveExceptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: exception service is required")
	}
	out, err := c.service.ResolveException(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
