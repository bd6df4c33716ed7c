// Package session owns the single similarity store a server talks to.
//
// The Connector guards its handle with a readers-writer lock: queries hold
// the read lock for their whole duration through Acquire, while Connect and
// Disconnect take the write lock and therefore wait for in-flight queries.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/observability"
	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Connector holds at most one open store
type Connector struct {
	opener Opener
	logger *slog.Logger

	mu          sync.RWMutex
	store       storage.SimilarityStore
	desc        types.StoreDescriptor
	connectedAt time.Time
}

// Status describes the connector state. It never carries credentials.
type Status struct {
	Connected   bool
	Kind        types.StoreKind
	Location    string
	ConnectedAt time.Time
	Store       *storage.Status
}

// NewConnector creates a disconnected connector
func NewConnector(opener Opener, logger *slog.Logger) *Connector {
	return &Connector{opener: opener, logger: logging.OrNoop(logger)}
}

// Connect opens the store described by desc, replacing any open store.
// The previous store is closed first; if the new one fails to open the
// connector is left disconnected.
func (c *Connector) Connect(ctx context.Context, desc types.StoreDescriptor) error {
	if err := desc.Validate(); err != nil {
		return types.Wrap(types.ErrConnection, err)
	}
	if err := types.FromContext(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	store, err := c.opener.Open(ctx, desc)
	if err != nil {
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("store connect failed", "location", desc.Redacted(), "error", err)
		return types.Wrap(types.ErrConnection, err)
	}

	c.store = store
	c.desc = desc
	c.connectedAt = time.Now()
	observability.StoreConnected.WithLabelValues(string(desc.Kind)).Set(1)
	c.logger.Info("store connected", "kind", desc.Kind, "location", desc.Redacted())
	return nil
}

// Disconnect closes the open store. It is a no-op when nothing is open.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// closeLocked releases the current store. Callers hold the write lock.
func (c *Connector) closeLocked() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	observability.StoreConnected.WithLabelValues(string(c.desc.Kind)).Set(0)
	c.logger.Info("store disconnected", "kind", c.desc.Kind, "location", c.desc.Redacted())

	c.store = nil
	c.desc = types.StoreDescriptor{}
	c.connectedAt = time.Time{}
	if err != nil {
		return types.Wrap(types.ErrConnection, err)
	}
	return nil
}

// Status reports whether a store is open and, if so, its statistics
func (c *Connector) Status(ctx context.Context) (*Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return &Status{Connected: false}, nil
	}

	st, err := c.store.Status(ctx)
	if err != nil {
		if ctxErr := types.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.Wrap(types.ErrQueryFailed, err)
	}
	st.Location = c.desc.Redacted()

	return &Status{
		Connected:   true,
		Kind:        c.desc.Kind,
		Location:    c.desc.Redacted(),
		ConnectedAt: c.connectedAt,
		Store:       st,
	}, nil
}

// Acquire returns the open store and holds the read lock until release is
// called. It fails with ErrNotConnected when no store is open.
func (c *Connector) Acquire(ctx context.Context) (storage.SimilarityStore, types.StoreKind, func(), error) {
	if err := types.FromContext(ctx); err != nil {
		return nil, "", nil, err
	}

	c.mu.RLock()
	if c.store == nil {
		c.mu.RUnlock()
		return nil, "", nil, types.ErrNotConnected
	}

	var once sync.Once
	release := func() { once.Do(c.mu.RUnlock) }
	return c.store, c.desc.Kind, release, nil
}

// RequireOpen fails with ErrNotConnected when no store is open
func (c *Connector) RequireOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.store == nil {
		return types.ErrNotConnected
	}
	return nil
}

// Connected reports whether a store is open
func (c *Connector) Connected() bool {
	return c.RequireOpen() == nil
}
