// Package flowledger provides a metered payment-streaming ledger for Go
// applications.
//
// Flowledger is designed as a library, not a service. Import it directly
// into your Go application and drive it from your own transport. It
// provides:
//
//   - Native-token deposit accounts with obligation-aware withdrawal limits
//   - Linear payment flows that accrue stable-denominated value per month
//   - Lazy settlement: flows are priced on demand, never by a background job
//   - Conservation-checked fee capture and equal-split revenue distribution
//   - Pluggable storage (memory, PostgreSQL, SQLite, MongoDB)
//   - Lifecycle plugins for metrics and audit trails
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/flowledger"
//	    "github.com/xraph/flowledger/store/postgres"
//	)
//
//	store, err := postgres.NewStore(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := flowledger.New(store)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Accounts hold native-token deposits. Flows stream stable-denominated
// value from a payer account toward a cluster at a fixed monthly rate:
//
//	l.Deposit(ctx, "alice", 10_000)
//	f, err := l.OpenFlow(ctx, "alice", clusterID, 100, nowMs)
//
// Nothing moves until settlement collects what has accrued:
//
//	settled, err := l.SettleFlow(ctx, f.ID, nowMs)
//
// Withdrawals respect locked obligations, so a payer can never pull out
// funds that flows have already earned:
//
//	free, err := l.Withdrawable(ctx, "alice", nowMs)
//
// # Time
//
// Every time-dependent operation takes the current time in milliseconds
// from the caller. The engine never reads the clock, which makes replay
// and testing deterministic.
//
// # Arithmetic
//
// All value arithmetic is integer-only. Accruals use 128-bit intermediates
// and floor division, so rounding dust always stays on the ledger side and
// totals are conserved exactly.
//
// # TypeID
//
// Flows and clusters use TypeID for globally unique, type-safe
// identifiers:
//
//	flow_01h2xcejqtf2nbrexx3vqjhp41  // Flow ID
//	clus_01h455vb4pex5vsknk084sn02q  // Cluster ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package flowledger
