package signature

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	return cat
}

func TestLoadCatalog(t *testing.T) {
	cat := loadTestCatalog(t)

	require.Len(t, cat.Programs, 2)
	assert.Equal(t, 3, cat.FunctionCount())
	assert.Equal(t, "0x401a00", cat.Programs[0].Functions[1].Address, "addresses are normalized")
	assert.Equal(t, "0x402000", cat.Programs[1].Functions[0].Address)
	assert.Equal(t, []float32{1, 0, 2, 0.5}, cat.Programs[1].Functions[0].Features)
}

func TestParseCatalog_JSON(t *testing.T) {
	doc := `{"programs":[{"path":"/bin/ls","functions":[{"name":"main","address":"0x10","features":[1,2]}]}]}`
	cat, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "/bin/ls", cat.Programs[0].Name, "name defaults to path")
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing path":    "programs:\n  - name: x\n",
		"duplicate path":  "programs:\n  - path: /a\n  - path: /a\n",
		"empty features":  "programs:\n  - path: /a\n    functions:\n      - {name: f, address: '0x1', features: []}\n",
		"bad address":     "programs:\n  - path: /a\n    functions:\n      - {name: f, address: xyz, features: [1]}\n",
		"missing address": "programs:\n  - path: /a\n    functions:\n      - {name: f, features: [1]}\n",
		"unknown field":   "programz: []\n",
		"not a document":  "{{{",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestCatalogProvider_Compute(t *testing.T) {
	p := NewCatalogProvider(loadTestCatalog(t))
	ctx := context.Background()

	t.Run("by address", func(t *testing.T) {
		sig, err := p.Compute(ctx, types.FunctionRef{Address: "0x401a00"})
		require.NoError(t, err)
		assert.Equal(t, "aes_encrypt", sig.Function().Name)
		assert.Equal(t, "/usr/lib/libcrypto.so", sig.Function().Program.Path)
		assert.Equal(t, 2, sig.FeatureCount())
	})

	t.Run("by name takes first program in order", func(t *testing.T) {
		sig, err := p.Compute(ctx, types.FunctionRef{Name: "sha256_block"})
		require.NoError(t, err)
		assert.Equal(t, "/usr/lib/libcrypto.so", sig.Function().Program.Path)
	})

	t.Run("program narrows the search", func(t *testing.T) {
		sig, err := p.Compute(ctx, types.FunctionRef{Program: types.ProgramRef{Name: "busybox"}, Name: "sha256_block"})
		require.NoError(t, err)
		assert.Equal(t, "0x402000", sig.Function().Address)
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := p.Compute(ctx, types.FunctionRef{Name: "nope"})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("invalid reference", func(t *testing.T) {
		_, err := p.Compute(ctx, types.FunctionRef{})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Compute(cctx, types.FunctionRef{Name: "sha256_block"})
		assert.ErrorIs(t, err, types.ErrCancelled)
	})
}

func TestCatalogProvider_Functions(t *testing.T) {
	p := NewCatalogProvider(loadTestCatalog(t))
	ctx := context.Background()

	refs, err := p.Functions(ctx, types.ProgramRef{Path: "/usr/lib/libcrypto.so"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "sha256_block", refs[0].Name)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", refs[0].Program.ID)

	_, err = p.Functions(ctx, types.ProgramRef{Path: "/nope"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = p.Functions(ctx, types.ProgramRef{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestCatalogProvider_Merge(t *testing.T) {
	p := NewCatalogProvider(nil)
	assert.Empty(t, p.Programs())

	p.Merge(loadTestCatalog(t))
	assert.Len(t, p.Programs(), 2)

	update, err := ParseCatalog([]byte("programs:\n  - path: /bin/busybox\n    name: bb\n    functions: []\n  - path: /bin/new\n"))
	require.NoError(t, err)
	p.Merge(update)

	programs := p.Programs()
	require.Len(t, programs, 3)
	assert.Equal(t, "bb", programs[1].Name, "same path replaces in place")
	assert.Equal(t, "/bin/new", programs[2].Path)
}
