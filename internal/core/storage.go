package core

import (
	"context"
	"fmt"

	"blueprintcore/internal/config"
	"blueprintcore/internal/infra/persistence/memory"
	"blueprintcore/internal/infra/persistence/postgres"
	"blueprintcore/internal/infra/persistence/sqlite"
	"blueprintcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
	MemoryStore     = memory.Store
	SQLiteStore     = sqlite.Store
	PostgresStore   = postgres.Store
)

// NewMemoryStore constructs an in-memory store.
func NewMemoryStore(engine *RulesEngine, opts ...memory.Option) *MemoryStore {
	return memory.NewStore(engine, opts...)
}

// NewSQLiteStore opens a SQLite-backed store at path (empty selects the default file).
func NewSQLiteStore(path string, engine *RulesEngine, opts ...memory.Option) (*SQLiteStore, error) {
	return sqlite.NewStore(path, engine, opts...)
}

// NewPostgresStore connects to dsn and hydrates the store from its state table.
func NewPostgresStore(ctx context.Context, dsn string, engine *RulesEngine, opts ...memory.Option) (*PostgresStore, error) {
	return postgres.NewStore(ctx, dsn, engine, opts...)
}

// OpenPersistentStore selects a backend from cfg. An empty driver selects sqlite.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return NewMemoryStore(engine), nil
	case StorageSQLite:
		return NewSQLiteStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
