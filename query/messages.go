package query

import (
	"strings"

	"github.com/goliatone/go-reconcile/core"
)

const (
	TypeListPayoutStatuses    = "reconcile.query.payout_statuses.list"
	TypeListOpenExceptions    = "reconcile.query.exceptions.list_open"
	TypeGetIdentityProvenance = "reconcile.query.identity.provenance"
	TypeListActivity          = "reconcile.query.activity.list"
)

type ListPayoutStatusesMessage struct {
	Filter core.PayoutStatusFilter
}

func (ListPayoutStatusesMessage) Type() string { return TypeListPayoutStatuses }

func (m ListPayoutStatusesMessage) Validate() error {
	if strings.TrimSpace(m.Filter.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if !m.Filter.From.IsZero() && !m.Filter.To.IsZero() && m.Filter.To.Before(m.Filter.From) {
		return queryValidationError("to", "range end must not precede range start")
	}
	return nil
}

type ListOpenExceptionsMessage struct {
	TenantID string
	Kind     core.ExceptionKind
}

func (ListOpenExceptionsMessage) Type() string { return TypeListOpenExceptions }

func (m ListOpenExceptionsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type GetIdentityProvenanceMessage struct {
	IdentityID string
}

func (GetIdentityProvenanceMessage) Type() string { return TypeGetIdentityProvenance }

func (m GetIdentityProvenanceMessage) Validate() error {
	if strings.TrimSpace(m.IdentityID) == "" {
		return queryValidationError("identity_id", "identity id is required")
	}
	return nil
}

type ListActivityMessage struct {
	TenantID string
	Limit    int
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
