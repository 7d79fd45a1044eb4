package sqlstore

import "github.com/goliatone/go-reconcile/core"

var (
	_ core.EventStore             = (*EventStore)(nil)
	_ core.IdentityStore          = (*IdentityStore)(nil)
	_ core.EdgeStore              = (*EdgeStore)(nil)
	_ core.LedgerStore            = (*LedgerStore)(nil)
	_ core.ExceptionStore         = (*ExceptionStore)(nil)
	_ core.ActivityStore          = (*ActivityStore)(nil)
	_ core.FactReader             = (*FactReader)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
