package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dshills/funcsim-mcp/internal/storage"
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// setupTestStore starts a PostgreSQL container and returns an open Store.
// Tests are skipped if no container runtime is available.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("funcsim_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store := New(Config{
		DSN:            connStr,
		Location:       "postgres://test@container/funcsim_test",
		MaxConns:       4,
		MigrateOnStart: true,
	})
	require.NoError(t, store.Open(ctx))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	for _, path := range []string{"/bin/alpha", "/bin/beta"} {
		exe := &storage.Executable{Path: path, MD5: "md5" + path}
		require.NoError(t, store.UpsertExecutable(ctx, exe))
		for i, v := range [][]float32{{1, 0, 0}, {1, 1, 0}, {0, 0, 1}} {
			require.NoError(t, store.UpsertFunction(ctx, &storage.Function{
				ExecutableID: exe.ID,
				Name:         fmt.Sprintf("fn_%d", i),
				Address:      fmt.Sprintf("0x%x", 0x2000+i),
				Vector:       v,
			}))
		}
	}
}

func TestPostgres_NearestNeighbors(t *testing.T) {
	store := setupTestStore(t)
	seed(t, store)
	ctx := context.Background()

	sig, err := types.NewSignature(types.FunctionRef{Name: "q"}, []float32{1, 0, 0})
	require.NoError(t, err)

	matches, err := store.NearestNeighbors(ctx, sig, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "/bin/alpha", matches[0].Function.Program.Path)
	assert.Equal(t, "fn_0", matches[0].Function.Name)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "/bin/beta", matches[1].Function.Program.Path)
	assert.Equal(t, "fn_0", matches[1].Function.Name)
	assert.Equal(t, "fn_1", matches[2].Function.Name)
	assert.InDelta(t, 0.5, matches[2].Confidence/matches[2].Similarity, 1e-6)
}

func TestPostgres_StatusAndUpsert(t *testing.T) {
	store := setupTestStore(t)
	seed(t, store)
	ctx := context.Background()

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StoreNetworked, status.Kind)
	assert.Equal(t, "2", status.SchemaVersion)
	assert.Equal(t, "cosine", status.Similarity)
	assert.Equal(t, 2, status.Executables)
	assert.Equal(t, 6, status.Functions)
	assert.NotContains(t, status.Location, "test:test")

	again := &storage.Executable{Path: "/bin/alpha", MD5: "changed"}
	require.NoError(t, store.UpsertExecutable(ctx, again))
	var md5 string
	require.NoError(t, store.pool.QueryRow(ctx, "SELECT md5 FROM executables WHERE id = $1", again.ID).Scan(&md5))
	assert.Equal(t, "changed", md5)

	status, err = store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Executables, "upsert keyed by path")

	err = store.UpsertFunction(ctx, &storage.Function{ExecutableID: 9999, Name: "x", Address: "0x1", Vector: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgres_Closed(t *testing.T) {
	store := New(Config{DSN: "postgres://nobody@127.0.0.1:1/none"})

	_, err := store.Status(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.NoError(t, store.Close())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.defaults()
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnLifetime)
}

func TestMigrationVersion(t *testing.T) {
	v, ok := migrationVersion("001_create_signatures.sql")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = migrationVersion("readme.sql")
	assert.False(t, ok)
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].version)
	assert.Equal(t, 2, migrations[1].version)
	assert.Contains(t, migrations[1].sql, "store_metadata")
}

func TestLoadMigrations_Rejects(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"missing prefix": {
			"migrations/create.sql": {Data: []byte("SELECT 1")},
		},
		"duplicate version": {
			"migrations/001_a.sql": {Data: []byte("SELECT 1")},
			"migrations/001_b.sql": {Data: []byte("SELECT 2")},
		},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrations(files)
			assert.Error(t, err)
		})
	}
}

func TestLoadMigrations_Ordered(t *testing.T) {
	files := fstest.MapFS{
		"migrations/010_late.sql":  {Data: []byte("SELECT 10")},
		"migrations/002_early.sql": {Data: []byte("SELECT 2")},
		"migrations/notes.txt":     {Data: []byte("ignored")},
	}
	migrations, err := loadMigrations(files)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "002_early.sql", migrations[0].name)
	assert.Equal(t, "010_late.sql", migrations[1].name)
}
