package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"contentplan-bot/internal/config"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write lost to the record's current state.
	ErrConflict = errors.New("record state conflict")
)

// Open connects the store selected by cfg.StoreDriver and prepares its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := ConnectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewMongoStore(client, db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Postgres.DSN(), cfg.Debug)
	case config.StoreMemory:
		log.Println("[Store] Using in-memory store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
