// Package core contains the canonical reconciliation domain: raw event
// intake, identity resolution, the relationship matchers, the ledger
// consolidator, and the exception lifecycle. Storage and transport adapters
// must depend on this package; core must not depend on adapters.
package core
