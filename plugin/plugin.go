// Package plugin provides an extensible plugin system for the ledger.
// Plugins hook into balance and flow lifecycle events to extend
// functionality without touching the settlement core.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposit is called after a deposit is credited.
type OnDeposit interface {
	Plugin
	OnDeposit(ctx context.Context, accountID string, amount uint64) error
}

// OnWithdraw is called after a withdrawal completes.
type OnWithdraw interface {
	Plugin
	OnWithdraw(ctx context.Context, accountID string, amount uint64) error
}

// OnTransfer is called after a direct account-to-account transfer.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, fromID, toID string, amount uint64) error
}

// ──────────────────────────────────────────────────
// Flow lifecycle hooks
// ──────────────────────────────────────────────────

// OnFlowOpened is called when a new payment flow is opened.
type OnFlowOpened interface {
	Plugin
	OnFlowOpened(ctx context.Context, f interface{}) error
}

// OnFlowRateChanged is called when a flow's rate is raised.
type OnFlowRateChanged interface {
	Plugin
	OnFlowRateChanged(ctx context.Context, f interface{}, oldRate, newRate uint64) error
}

// OnFlowSettled is called when a flow is settled into its cluster.
type OnFlowSettled interface {
	Plugin
	OnFlowSettled(ctx context.Context, f interface{}, settled uint64) error
}

// ──────────────────────────────────────────────────
// Revenue hooks
// ──────────────────────────────────────────────────

// OnFeeCaptured is called when a protocol fee is carved out of a
// distribution. Kind is "network" or "cluster_management".
type OnFeeCaptured interface {
	Plugin
	OnFeeCaptured(ctx context.Context, kind string, amount uint64) error
}

// OnRevenuesDistributed is called after a cluster's revenue pool is paid
// out to its providers.
type OnRevenuesDistributed interface {
	Plugin
	OnRevenuesDistributed(ctx context.Context, c interface{}, total uint64) error
}

// ──────────────────────────────────────────────────
// Protocol parameter hooks
// ──────────────────────────────────────────────────

// OnExchangeRateChanged is called when the stable-per-native rate changes.
type OnExchangeRateChanged interface {
	Plugin
	OnExchangeRateChanged(ctx context.Context, oldRate, newRate uint64) error
}
