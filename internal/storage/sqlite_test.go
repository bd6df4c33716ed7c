package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

func setupTestStore(t *testing.T) *EmbeddedStore {
	t.Helper()
	// Use in-memory database for testing
	store := NewEmbeddedStore(types.MemoryPath, EmbeddedOptions{})
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedStore loads two executables with a handful of functions each
func seedStore(t *testing.T, store *EmbeddedStore) {
	t.Helper()
	ctx := context.Background()

	programs := map[string][][]float32{
		"/bin/alpha": {{1, 0, 0, 0}, {1, 1, 0, 0}, {0, 0, 1, 1}},
		"/bin/beta":  {{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0, 1, 0, 0}},
	}
	for path, vectors := range programs {
		exe := &Executable{Path: path, Name: filepath.Base(path), MD5: "md5-" + filepath.Base(path)}
		require.NoError(t, store.UpsertExecutable(ctx, exe))
		for i, v := range vectors {
			fn := &Function{
				ExecutableID: exe.ID,
				Name:         fmt.Sprintf("fn_%d", i),
				Address:      fmt.Sprintf("0x%x", 0x1000+i*0x10),
				Vector:       v,
			}
			require.NoError(t, store.UpsertFunction(ctx, fn))
		}
	}
}

func TestEmbeddedStore_OpenClose(t *testing.T) {
	store := NewEmbeddedStore(types.MemoryPath, EmbeddedOptions{})
	ctx := context.Background()

	_, err := store.Status(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, store.Open(ctx))
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "second close is harmless")

	_, err = store.NearestNeighbors(ctx, mustSignature(t, []float32{1}), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEmbeddedStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	store := NewEmbeddedStore(path, EmbeddedOptions{})

	err := store.Open(context.Background())
	assert.ErrorIs(t, err, ErrStoreMissing)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "opening must not create the file")
}

func TestEmbeddedStore_CreateThenReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	created := NewEmbeddedStore(path, EmbeddedOptions{Create: true})
	require.NoError(t, created.Open(ctx))
	seedStore(t, created)
	require.NoError(t, created.Close())

	reopened := NewEmbeddedStore(path, EmbeddedOptions{})
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	status, err := reopened.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StoreEmbedded, status.Kind)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, "cosine", status.Similarity)
	assert.Equal(t, 2, status.Executables)
	assert.Equal(t, 6, status.Functions)
	assert.True(t, status.Health.SignaturesPresent)
}

func TestEmbeddedStore_UpsertIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	exe := &Executable{Path: "/bin/alpha"}
	require.NoError(t, store.UpsertExecutable(ctx, exe))
	firstID := exe.ID
	assert.Equal(t, "/bin/alpha", exe.Name, "name defaults to path")

	again := &Executable{Path: "/bin/alpha", Name: "alpha", Architecture: "x86_64"}
	require.NoError(t, store.UpsertExecutable(ctx, again))
	assert.Equal(t, firstID, again.ID)

	var name, arch string
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT name, architecture FROM executables WHERE path = ?", "/bin/alpha").Scan(&name, &arch))
	assert.Equal(t, "alpha", name)
	assert.Equal(t, "x86_64", arch)

	fn := &Function{ExecutableID: exe.ID, Name: "main", Address: "0X401000", Vector: []float32{1, 0, 2}}
	require.NoError(t, store.UpsertFunction(ctx, fn))
	assert.Equal(t, "0x401000", fn.Address)
	assert.Equal(t, 2, fn.FeatureCount)

	renamed := &Function{ExecutableID: exe.ID, Name: "entry", Address: "0x401000", Vector: []float32{1, 1, 1}}
	require.NoError(t, store.UpsertFunction(ctx, renamed))
	assert.Equal(t, fn.ID, renamed.ID)

	var fnName string
	var blob []byte
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT name, vector FROM functions WHERE executable_id = ?", exe.ID).Scan(&fnName, &blob))
	assert.Equal(t, "entry", fnName)
	assert.Equal(t, []float32{1, 1, 1}, deserializeVector(blob))

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Executables)
	assert.Equal(t, 1, status.Functions)
}

func TestEmbeddedStore_UpsertFunction_Rejects(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	exe := &Executable{Path: "/bin/alpha"}
	require.NoError(t, store.UpsertExecutable(ctx, exe))

	err := store.UpsertFunction(ctx, &Function{ExecutableID: exe.ID, Name: "f", Address: "0x1"})
	assert.ErrorIs(t, err, types.ErrEmptySignature)

	err = store.UpsertFunction(ctx, &Function{ExecutableID: exe.ID, Name: "f", Address: "nope", Vector: []float32{1}})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestEmbeddedStore_NearestNeighbors(t *testing.T) {
	store := setupTestStore(t)
	seedStore(t, store)
	ctx := context.Background()

	sig := mustSignature(t, []float32{1, 0, 0, 0})
	matches, err := store.NearestNeighbors(ctx, sig, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// Two exact matches tie on score; key order puts alpha first
	assert.Equal(t, "/bin/alpha", matches[0].Function.Program.Path)
	assert.Equal(t, "fn_0", matches[0].Function.Name)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "/bin/beta", matches[1].Function.Program.Path)
	assert.Equal(t, "fn_0", matches[1].Function.Name)
	assert.Equal(t, "md5-beta", matches[1].Function.Program.ID)
	assert.Equal(t, "/bin/beta", matches[2].Function.Program.Path)
	assert.Equal(t, "fn_1", matches[2].Function.Name)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, types.CompareCandidates(matches[i-1], matches[i]), 0)
	}
	for _, m := range matches {
		assert.NoError(t, m.Validate())
	}
}

func TestEmbeddedStore_NearestNeighbors_Edges(t *testing.T) {
	store := setupTestStore(t)
	seedStore(t, store)
	ctx := context.Background()

	t.Run("zero feature query", func(t *testing.T) {
		matches, err := store.NearestNeighbors(ctx, mustSignature(t, []float32{0, 0, 0, 0}), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("other dimension", func(t *testing.T) {
		matches, err := store.NearestNeighbors(ctx, mustSignature(t, []float32{1, 0}), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("k larger than store", func(t *testing.T) {
		matches, err := store.NearestNeighbors(ctx, mustSignature(t, []float32{1, 0, 0, 0}), 100)
		require.NoError(t, err)
		assert.Len(t, matches, 6)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.NearestNeighbors(cctx, mustSignature(t, []float32{1, 0, 0, 0}), 5)
		assert.Error(t, err)
	})
}

func TestEmbeddedStore_WithTx(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Ingester) error {
		exe := &Executable{Path: "/bin/tx"}
		if err := tx.UpsertExecutable(ctx, exe); err != nil {
			return err
		}
		return tx.UpsertFunction(ctx, &Function{ExecutableID: exe.ID, Name: "f", Address: "0x10", Vector: []float32{1}})
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx Ingester) error {
		if err := tx.UpsertExecutable(ctx, &Executable{Path: "/bin/rolled-back"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	var rolledBack int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM executables WHERE path = ?", "/bin/rolled-back").Scan(&rolledBack))
	assert.Zero(t, rolledBack)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Executables)
	assert.Equal(t, 1, status.Functions)
}

func mustSignature(t *testing.T, vector []float32) types.Signature {
	t.Helper()
	sig, err := types.NewSignature(types.FunctionRef{Name: "query"}, vector)
	require.NoError(t, err)
	return sig
}
