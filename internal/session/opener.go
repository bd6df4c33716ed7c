package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/internal/storage/postgres"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Opener turns a descriptor into an open store
type Opener interface {
	Open(ctx context.Context, desc types.StoreDescriptor) (storage.SimilarityStore, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, desc types.StoreDescriptor) (storage.SimilarityStore, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, desc types.StoreDescriptor) (storage.SimilarityStore, error) {
	return f(ctx, desc)
}

// PoolConfig holds connection pool settings for networked stores
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// StoreOpener opens embedded SQLite files and networked PostgreSQL stores
type StoreOpener struct {
	Pool PoolConfig
}

// Open opens the store described by desc. The returned store is ready for queries.
func (o StoreOpener) Open(ctx context.Context, desc types.StoreDescriptor) (storage.SimilarityStore, error) {
	var store storage.SimilarityStore
	switch desc.Kind {
	case types.StoreEmbedded:
		store = storage.NewEmbeddedStore(desc.Path, storage.EmbeddedOptions{})
	case types.StoreNetworked:
		store = postgres.New(postgres.Config{
			DSN:             desc.DSN(),
			Location:        desc.Redacted(),
			MaxConns:        o.Pool.MaxConns,
			MinConns:        o.Pool.MinConns,
			MaxConnLifetime: o.Pool.MaxConnLifetime,
			MigrateOnStart:  true,
		})
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedStore, desc.Kind)
	}

	if err := store.Open(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
