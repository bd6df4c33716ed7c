package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// EmbeddedOptions control how an embedded store is opened
type EmbeddedOptions struct {
	// Create allows Open to create the file when it does not exist
	Create bool
}

// EmbeddedStore implements SimilarityStore and Ingester on a SQLite file
type EmbeddedStore struct {
	path string
	opts EmbeddedOptions

	mu sync.RWMutex
	db *sql.DB
}

// NewEmbeddedStore creates an unopened embedded store for path
func NewEmbeddedStore(path string, opts EmbeddedOptions) *EmbeddedStore {
	return &EmbeddedStore{path: path, opts: opts}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if dbPath != types.MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer; keeps :memory: on one connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens the file and applies pending migrations
func (s *EmbeddedStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.path != types.MemoryPath && !s.opts.Create {
		if _, err := os.Stat(s.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
			}
			return fmt.Errorf("failed to stat store: %w", err)
		}
	}

	db, err := openDatabase(ctx, s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *EmbeddedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the open database or ErrClosed
func (s *EmbeddedStore) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NearestNeighbors returns the k most similar stored functions
func (s *EmbeddedStore) NearestNeighbors(ctx context.Context, sig types.Signature, k int) ([]types.MatchCandidate, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return searchFunctions(ctx, db, sig, k)
}

// Status returns store statistics
func (s *EmbeddedStore) Status(ctx context.Context) (*Status, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Kind:            types.StoreEmbedded,
		Location:        s.path,
		VectorExtension: VectorExtensionAvailable,
	}

	version, err := schemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	if err := db.QueryRowContext(ctx,
		"SELECT value FROM store_metadata WHERE key = 'similarity'").Scan(&status.Similarity); err != nil {
		return nil, fmt.Errorf("failed to read similarity measure: %w", err)
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executables").Scan(&status.Executables); err != nil {
		return nil, fmt.Errorf("failed to count executables: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM functions").Scan(&status.Functions); err != nil {
		return nil, fmt.Errorf("failed to count functions: %w", err)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		SignaturesPresent:  status.Functions > 0,
	}
	return status, nil
}

// Executable operations

// upsertExecutableWithQuerier is the internal implementation that uses a querier
func upsertExecutableWithQuerier(ctx context.Context, q querier, exe *Executable) error {
	if exe.Path == "" {
		return fmt.Errorf("executable path is required")
	}
	if exe.Name == "" {
		exe.Name = exe.Path
	}
	query := `
		INSERT INTO executables (md5, name, path, architecture, compiler, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			md5 = excluded.md5,
			name = excluded.name,
			architecture = excluded.architecture,
			compiler = excluded.compiler
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		exe.MD5, exe.Name, exe.Path, exe.Architecture, exe.Compiler, now).Scan(&exe.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert executable: %w", err)
	}
	if exe.CreatedAt.IsZero() {
		exe.CreatedAt = now
	}
	return nil
}

// UpsertExecutable inserts or updates an executable keyed by path
func (s *EmbeddedStore) UpsertExecutable(ctx context.Context, exe *Executable) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return upsertExecutableWithQuerier(ctx, db, exe)
}

// Function operations

// upsertFunctionWithQuerier is the internal implementation that uses a querier
func upsertFunctionWithQuerier(ctx context.Context, q querier, fn *Function) error {
	if len(fn.Vector) == 0 {
		return types.ErrEmptySignature
	}
	address, err := types.NormalizeAddress(fn.Address)
	if err != nil {
		return err
	}
	fn.Address = address

	blob, err := vectorBlob(fn.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	if fn.FeatureCount == 0 {
		fn.FeatureCount = types.CountFeatures(fn.Vector)
	}

	query := `
		INSERT INTO functions (executable_id, name, address, vector, dimension, feature_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(executable_id, address) DO UPDATE SET
			name = excluded.name,
			vector = excluded.vector,
			dimension = excluded.dimension,
			feature_count = excluded.feature_count
		RETURNING id
	`
	now := time.Now()
	err = q.QueryRowContext(ctx, query,
		fn.ExecutableID, fn.Name, fn.Address, blob, len(fn.Vector), fn.FeatureCount, now).Scan(&fn.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert function: %w", err)
	}
	if fn.CreatedAt.IsZero() {
		fn.CreatedAt = now
	}
	return nil
}

// UpsertFunction inserts or updates a function signature keyed by executable and address
func (s *EmbeddedStore) UpsertFunction(ctx context.Context, fn *Function) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return upsertFunctionWithQuerier(ctx, db, fn)
}

// WithTx runs fn inside a transaction. The Ingester passed to fn is only
// valid for the duration of the call.
func (s *EmbeddedStore) WithTx(ctx context.Context, fn func(Ingester) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) UpsertExecutable(ctx context.Context, exe *Executable) error {
	return upsertExecutableWithQuerier(ctx, t.tx, exe)
}

func (t *sqliteTx) UpsertFunction(ctx context.Context, fn *Function) error {
	return upsertFunctionWithQuerier(ctx, t.tx, fn)
}

var (
	_ SimilarityStore = (*EmbeddedStore)(nil)
	_ Ingester        = (*EmbeddedStore)(nil)
	_ Ingester        = (*sqliteTx)(nil)
)
