package query

import (
	"context"

	"github.com/goliatone/go-reconcile/core"
)

type PayoutStatusReader interface {
	ListPayoutStatuses(ctx context.Context, filter core.PayoutStatusFilter) ([]core.PayoutStatus, error)
}

type ExceptionReader interface {
	ListOpenExceptions(ctx context.Context, tenantID string, kind core.ExceptionKind) ([]core.Exception, error)
}

type ProvenanceReader interface {
	GetIdentityProvenance(ctx context.Context, identityID string) (core.IdentityProvenance, error)
}

type ActivityReader interface {
	List(ctx context.Context, tenantID string, limit int) ([]core.ActivityEntry, error)
}

type ListPayoutStatusesQuery struct {
	reader PayoutStatusReader
}

func NewListPayoutStatusesQuery(reader PayoutStatusReader) *ListPayoutStatusesQuery {
	return &ListPayoutStatusesQuery{reader: reader}
}

func (q *ListPayoutStatusesQuery) Query(
	ctx context.Context,
	msg ListPayoutStatusesMessage,
) ([]core.PayoutStatus, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: payout status reader is required")
	}
	return q.reader.ListPayoutStatuses(ctx, msg.Filter)
}

type ListOpenExceptionsQuery struct {
	reader ExceptionReader
}

func NewListOpenExceptionsQuery(reader ExceptionReader) *ListOpenExceptionsQuery {
	return &ListOpenExceptionsQuery{reader: reader}
}

func (q *ListOpenExceptionsQuery) Query(
	ctx context.Context,
	msg ListOpenExceptionsMessage,
) ([]core.Exception, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: exception reader is required")
	}
	return q.reader.ListOpenExceptions(ctx, msg.TenantID, msg.Kind)
}

type GetIdentityProvenanceQuery struct {
	reader ProvenanceReader
}

func NewGetIdentityProvenanceQuery(reader ProvenanceReader) *GetIdentityProvenanceQuery {
	return &GetIdentityProvenanceQuery{reader: reader}
}

func (q *GetIdentityProvenanceQuery) Query(
	ctx context.Context,
	msg GetIdentityProvenanceMessage,
) (core.IdentityProvenance, error) {
	if q == nil || q.reader == nil {
		return core.IdentityProvenance{}, queryDependencyError("query: provenance reader is required")
	}
	return q.reader.GetIdentityProvenance(ctx, msg.IdentityID)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(
	ctx context.Context,
	msg ListActivityMessage,
) ([]core.ActivityEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.TenantID, msg.Limit)
}
