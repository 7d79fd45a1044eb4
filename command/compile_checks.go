package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestBatchMessage]      = (*IngestBatchCommand)(nil)
	_ gocmd.Commander[RunMatchersMessage]      = (*RunMatchersCommand)(nil)
	_ gocmd.Commander[ConsolidateMessage]      = (*ConsolidateCommand)(nil)
	_ gocmd.Commander[ResolveExceptionMessage] = (*ResolveExceptionCommand)(nil)
)
