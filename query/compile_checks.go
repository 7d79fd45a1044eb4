package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-reconcile/core"
)

var (
	_ gocmd.Querier[ListPayoutStatusesMessage, []core.PayoutStatus]        = (*ListPayoutStatusesQuery)(nil)
	_ gocmd.Querier[ListOpenExceptionsMessage, []core.Exception]           = (*ListOpenExceptionsQuery)(nil)
	_ gocmd.Querier[GetIdentityProvenanceMessage, core.IdentityProvenance] = (*GetIdentityProvenanceQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, []core.ActivityEntry]             = (*ListActivityQuery)(nil)
)
