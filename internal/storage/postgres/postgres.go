// Package postgres provides a networked PostgreSQL implementation of
// storage.SimilarityStore. It uses pgx/v5 for connection pooling and keeps
// signature vectors in REAL[] columns; scoring happens client side so the
// server needs no vector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Store is a PostgreSQL-backed SimilarityStore.
type Store struct {
	cfg Config

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// Ensure Store implements the storage interfaces at compile time.
var (
	_ storage.SimilarityStore = (*Store)(nil)
	_ storage.Ingester        = (*Store)(nil)
)

// New creates an unopened store with the given configuration.
func New(cfg Config) *Store {
	cfg.defaults()
	return &Store{cfg: cfg}
}

// Open creates the connection pool and verifies connectivity.
// If MigrateOnStart is true, schema migrations are applied.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = s.cfg.MaxConns
	poolCfg.MinConns = s.cfg.MinConns
	poolCfg.MaxConnLifetime = s.cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("connecting to database: %w", err)
	}

	s.pool = pool

	if s.cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			s.pool = nil
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *Store) handle() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, storage.ErrClosed
	}
	return s.pool, nil
}

// NearestNeighbors streams signatures of the query's dimension and keeps the
// k best under types.CompareCandidates.
func (s *Store) NearestNeighbors(ctx context.Context, sig types.Signature, k int) ([]types.MatchCandidate, error) {
	pool, err := s.handle()
	if err != nil {
		return nil, err
	}
	if k <= 0 || sig.FeatureCount() == 0 {
		return []types.MatchCandidate{}, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT e.md5, e.name, e.path, f.name, f.address, f.vector, f.feature_count
		FROM functions f
		JOIN executables e ON e.id = f.executable_id
		WHERE f.dimension = $1 AND f.feature_count > 0
	`, sig.Dimension())
	if err != nil {
		return nil, fmt.Errorf("querying signatures: %w", err)
	}
	defer rows.Close()

	query := sig.Vector()
	queryFeatures := sig.FeatureCount()
	top := storage.NewTopK(k)

	for rows.Next() {
		var c types.MatchCandidate
		var vector []float32
		var featureCount int
		if err := rows.Scan(
			&c.Function.Program.ID, &c.Function.Program.Name, &c.Function.Program.Path,
			&c.Function.Name, &c.Function.Address, &vector, &featureCount,
		); err != nil {
			return nil, fmt.Errorf("scanning signature: %w", err)
		}

		sim, conf, ok := storage.ScorePair(query, queryFeatures, vector, featureCount)
		if !ok {
			continue
		}
		c.Similarity = sim
		c.Confidence = conf
		top.Offer(c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signatures: %w", err)
	}

	return top.Results(), nil
}

// Status reports store statistics.
func (s *Store) Status(ctx context.Context) (*storage.Status, error) {
	pool, err := s.handle()
	if err != nil {
		return nil, err
	}

	status := &storage.Status{
		Kind:     types.StoreNetworked,
		Location: s.cfg.Location,
	}

	var version *int
	if err := pool.QueryRow(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != nil {
		status.SchemaVersion = strconv.Itoa(*version)
	}

	if err := pool.QueryRow(ctx,
		"SELECT value FROM store_metadata WHERE key = 'similarity'").Scan(&status.Similarity); err != nil {
		return nil, fmt.Errorf("reading similarity measure: %w", err)
	}

	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM executables").Scan(&status.Executables); err != nil {
		return nil, fmt.Errorf("counting executables: %w", err)
	}
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM functions").Scan(&status.Functions); err != nil {
		return nil, fmt.Errorf("counting functions: %w", err)
	}

	status.Health = storage.HealthStatus{
		DatabaseAccessible: true,
		SignaturesPresent:  status.Functions > 0,
	}
	return status, nil
}

// UpsertExecutable inserts or updates an executable keyed by path.
func (s *Store) UpsertExecutable(ctx context.Context, exe *storage.Executable) error {
	pool, err := s.handle()
	if err != nil {
		return err
	}
	if exe.Path == "" {
		return fmt.Errorf("executable path is required")
	}
	if exe.Name == "" {
		exe.Name = exe.Path
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO executables (md5, name, path, architecture, compiler)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			md5 = EXCLUDED.md5,
			name = EXCLUDED.name,
			architecture = EXCLUDED.architecture,
			compiler = EXCLUDED.compiler
		RETURNING id, created_at
	`, exe.MD5, exe.Name, exe.Path, exe.Architecture, exe.Compiler).Scan(&exe.ID, &exe.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting executable: %w", err)
	}
	return nil
}

// UpsertFunction inserts or updates a function signature keyed by executable and address.
func (s *Store) UpsertFunction(ctx context.Context, fn *storage.Function) error {
	pool, err := s.handle()
	if err != nil {
		return err
	}
	if len(fn.Vector) == 0 {
		return types.ErrEmptySignature
	}
	address, err := types.NormalizeAddress(fn.Address)
	if err != nil {
		return err
	}
	fn.Address = address
	if fn.FeatureCount == 0 {
		fn.FeatureCount = types.CountFeatures(fn.Vector)
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO functions (executable_id, name, address, vector, dimension, feature_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (executable_id, address) DO UPDATE SET
			name = EXCLUDED.name,
			vector = EXCLUDED.vector,
			dimension = EXCLUDED.dimension,
			feature_count = EXCLUDED.feature_count
		RETURNING id, created_at
	`, fn.ExecutableID, fn.Name, fn.Address, fn.Vector, len(fn.Vector), fn.FeatureCount).Scan(&fn.ID, &fn.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("executable %d: %w", fn.ExecutableID, storage.ErrNotFound)
		}
		return fmt.Errorf("upserting function: %w", err)
	}
	return nil
}

// isForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
