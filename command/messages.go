package command

import (
	"strings"

	"github.com/goliatone/go-reconcile/core"
)

const (
	TypeIngestBatch      = "reconcile.command.ingest_batch"
	TypeRunMatchers      = "reconcile.command.run_matchers"
	TypeConsolidate      = "reconcile.command.consolidate"
	TypeResolveException = "reconcile.command.exception.resolve"
)

type IngestBatchMessage struct {
	Input core.IngestBatchInput
}

func (IngestBatchMessage) Type() string { return TypeIngestBatch }

func (m IngestBatchMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if len(m.Input.Events) == 0 {
		return commandValidationError("events", "at least one event is required")
	}
	return nil
}

type RunMatchersMessage struct {
	TenantID string
}

func (RunMatchersMessage) Type() string { return TypeRunMatchers }

func (m RunMatchersMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ConsolidateMessage struct {
	Input core.ConsolidateInput
}

func (ConsolidateMessage) Type() string { return TypeConsolidate }

func (m ConsolidateMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ResolveExceptionMessage struct {
	Input core.ResolveExceptionInput
}

func (ResolveExceptionMessage) Type() string { return TypeResolveException }

func (m ResolveExceptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.ExceptionID) == "" {
		return commandValidationError("exception_id", "exception id is required")
	}
	if strings.TrimSpace(m.Input.ResolvedBy) == "" {
		return commandValidationError("resolved_by", "resolved by is required")
	}
	for _, edge := range m.Input.ChosenEdges {
		if err := edge.Validate(); err != nil {
			return commandWrapValidation(err, "command: chosen edge is invalid")
		}
	}
	return nil
}
