// Package extension provides the Forge extension adapter for flowledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.flowledger" or
// "flowledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	flowledger "github.com/xraph/flowledger"
	"github.com/xraph/flowledger/store"
	"github.com/xraph/flowledger/store/memory"
	mongostore "github.com/xraph/flowledger/store/mongo"
	pgstore "github.com/xraph/flowledger/store/postgres"
	sqlitestore "github.com/xraph/flowledger/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "flowledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Metered payment-streaming ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts flowledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *flowledger.Ledger
	store      store.Store
	ledgerOpts []flowledger.Option
}

// New creates a new flowledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *flowledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Build a store from config if none was provided programmatically.
	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = flowledger.New(e.store, e.ledgerOpts...)

	return vessel.Provide(fapp.Container(), func() (*flowledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("flowledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("flowledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs a storage backend from the resolved config.
func (e *Extension) buildStore() (store.Store, error) {
	switch e.config.StoreDriver {
	case "", "memory":
		return memory.NewStore(), nil
	case "postgres":
		return pgstore.NewStore(e.config.StoreDSN)
	case "sqlite":
		return sqlitestore.NewStore(e.config.StoreDSN)
	case "mongo":
		return mongostore.NewStore(e.config.StoreDSN, e.config.MongoDatabase)
	default:
		return nil, fmt.Errorf("flowledger: unknown store driver %q", e.config.StoreDriver)
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("flowledger: configuration is required but not found in config files; " +
				"ensure 'extensions.flowledger' or 'flowledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("flowledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.flowledger" first (namespaced pattern).
	if cm.IsSet("extensions.flowledger") {
		if err := cm.Bind("extensions.flowledger", &cfg); err == nil {
			e.Logger().Debug("flowledger: loaded config from file",
				forge.F("key", "extensions.flowledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("flowledger: failed to bind extensions.flowledger config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "flowledger" key.
	if cm.IsSet("flowledger") {
		if err := cm.Bind("flowledger", &cfg); err == nil {
			e.Logger().Debug("flowledger: loaded config from file",
				forge.F("key", "flowledger"),
			)
			return cfg, true
		}
		e.Logger().Warn("flowledger: failed to bind flowledger config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = defaults.MongoDatabase
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.StoreDriver == "" && programmaticConfig.StoreDriver != "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.StoreDSN == "" && programmaticConfig.StoreDSN != "" {
		yamlConfig.StoreDSN = programmaticConfig.StoreDSN
	}
	if yamlConfig.MongoDatabase == "" && programmaticConfig.MongoDatabase != "" {
		yamlConfig.MongoDatabase = programmaticConfig.MongoDatabase
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
