package extension

// Config holds the flowledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.flowledger" or "flowledger"
// keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// StoreDriver selects the storage backend: "memory", "postgres",
	// "sqlite" or "mongo" (default: "memory").
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// StoreDSN is the connection string for the selected backend. For
	// sqlite it is the database file path, for mongo the connection URI.
	StoreDSN string `json:"store_dsn" mapstructure:"store_dsn" yaml:"store_dsn"`

	// MongoDatabase is the database name used by the mongo backend
	// (default: "flowledger").
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StoreDriver:   "memory",
		MongoDatabase: "flowledger",
	}
}
