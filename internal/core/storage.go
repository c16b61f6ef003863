package core

import (
	"fmt"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/internal/infra/persistence/postgres"
	"crmcore/internal/infra/persistence/sqlite"
	"crmcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises a backend.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// ApplyStorageEnv overlays the storage settings found through lookup onto
// cfg. Unset or empty variables leave cfg untouched.
//
//	CRMCORE_STORAGE_DRIVER: memory|sqlite|postgres
//	CRMCORE_SQLITE_PATH: path to sqlite file
//	CRMCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func ApplyStorageEnv(cfg *StorageConfig, lookup func(string) (string, bool)) {
	if v, ok := lookup("CRMCORE_STORAGE_DRIVER"); ok && v != "" {
		cfg.Driver = StorageDriver(v)
	}
	if v, ok := lookup("CRMCORE_SQLITE_PATH"); ok && v != "" {
		cfg.SQLitePath = v
	}
	if v, ok := lookup("CRMCORE_POSTGRES_DSN"); ok && v != "" {
		cfg.PostgresDSN = v
	}
}

// OpenStore constructs the backend described by cfg. A nil engine selects
// NewDefaultRulesEngine.
func OpenStore(cfg StorageConfig, engine *domain.RulesEngine, opts ...memory.Option) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath, engine, opts...)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
