package signature

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// countingProvider counts Compute calls
type countingProvider struct {
	calls int
	fail  bool
}

func (c *countingProvider) Compute(_ context.Context, fn types.FunctionRef) (types.Signature, error) {
	c.calls++
	if c.fail {
		return types.Signature{}, errors.New("extractor offline")
	}
	return types.NewSignature(fn, []float32{1, 2})
}

func (c *countingProvider) Functions(context.Context, types.ProgramRef) ([]types.FunctionRef, error) {
	return []types.FunctionRef{{Name: "f"}}, nil
}

func TestCachedProvider_Hits(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 2)
	ctx := context.Background()

	fn := types.FunctionRef{Name: "main"}
	_, err := cached.Compute(ctx, fn)
	require.NoError(t, err)
	sig, err := cached.Compute(ctx, fn)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, fn, sig.Function())
	assert.Equal(t, 1, cached.Size())

	cached.Purge()
	assert.Equal(t, 0, cached.Size())
}

func TestCachedProvider_Evicts(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 2)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := cached.Compute(ctx, types.FunctionRef{Name: name})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Size())

	_, err := cached.Compute(ctx, types.FunctionRef{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls, "evicted entry recomputed")
}

func TestCachedProvider_KeysOnFullIdentity(t *testing.T) {
	inner := &countingProvider{}
	cached := NewCachedProvider(inner, 10)
	ctx := context.Background()

	byID := types.FunctionRef{Program: types.ProgramRef{ID: "x"}, Name: "main", Address: "0x10"}
	byPath := types.FunctionRef{Program: types.ProgramRef{Path: "x"}, Name: "main", Address: "0x10"}
	byName := types.FunctionRef{Program: types.ProgramRef{Name: "x"}, Name: "main", Address: "0x10"}

	for _, fn := range []types.FunctionRef{byID, byPath, byName} {
		sig, err := cached.Compute(ctx, fn)
		require.NoError(t, err)
		assert.Equal(t, fn, sig.Function(), "served the signature computed for this ref")
	}
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 3, cached.Size())

	sig, err := cached.Compute(ctx, byPath)
	require.NoError(t, err)
	assert.Equal(t, byPath, sig.Function())
	assert.Equal(t, 3, inner.calls)
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{fail: true}
	cached := NewCachedProvider(inner, 0)

	_, err := cached.Compute(context.Background(), types.FunctionRef{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, cached.Size())

	refs, err := cached.Functions(context.Background(), types.ProgramRef{Path: "/a"})
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}
