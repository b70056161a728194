package extension

import (
	flowledger "github.com/xraph/flowledger"
	"github.com/xraph/flowledger/plugin"
	"github.com/xraph/flowledger/store"
)

// Option configures the flowledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a flowledger.Option through to the underlying engine.
func WithLedgerOption(opt flowledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, flowledger.WithPlugin(p))
	}
}

// WithTransferFunc sets the outbound native token transfer hook.
func WithTransferFunc(fn flowledger.TransferFunc) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, flowledger.WithTransferFunc(fn))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithStoreDriver selects the storage backend and its connection string.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.StoreDriver = driver
		e.config.StoreDSN = dsn
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
