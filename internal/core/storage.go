package core

import (
	"cellarcore/internal/config"
	"cellarcore/internal/infra/persistence/memory"
	"cellarcore/internal/infra/persistence/postgres"
	"cellarcore/internal/infra/persistence/sqlite"
	"cellarcore/pkg/domain"
	"context"
	"fmt"
)

// OpenPersistentStore builds the store selected by cfg. The returned close
// function releases files and connections; it is never nil.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *domain.RulesEngine) (domain.PersistentStore, func() error, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine), noop, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
