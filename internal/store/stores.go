package store

// Stores is the top-level container for all storage backends.
type Stores struct {
	Projects   ProjectStore
	Memory     MemoryStore
	Rules      RuleStore
	ActiveWork ActiveWorkStore
	Settings   SettingsStore
	Access     AccessStore
	Audit      AuditStore
}

// StoreConfig configures the SQL backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	DSN    string
	// AutoMigrate applies embedded migrations on open.
	AutoMigrate bool
}
