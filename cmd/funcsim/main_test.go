package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/funcsim-mcp/internal/config"
	"github.com/dshills/funcsim-mcp/internal/logging"
)

const testCatalog = `
programs:
  - name: busybox
    path: /bin/busybox
    functions:
      - name: sha256_block
        address: "0x402000"
        features: [1, 0, 2, 1]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "funcsim-mcp dev")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "create", "ingest", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCreateAndIngestCmd(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "stores", "libs.db")
	catalog := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(testCatalog), 0o644))

	out, err := execute(t, "create", store)
	require.NoError(t, err)
	assert.Contains(t, out, "created "+store)

	_, err = execute(t, "create", store)
	assert.Error(t, err)

	out, err = execute(t, "ingest", "--store", store, catalog)
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 1 functions from 1 programs (0 failed)")
}

func TestIngestCmd_NoStore(t *testing.T) {
	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "catalog.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store")
}

func TestIngestCmd_BadConfig(t *testing.T) {
	_, err := execute(t, "ingest", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "catalog.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(testCatalog), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog.Path = catalog
	cfg.Store.Default = filepath.Join(dir, "missing.db")

	a, err := newApp(cfg, logging.Noop())
	require.NoError(t, err)
	defer a.close()

	// A missing default store is reported, not created
	assert.Error(t, a.connectDefault(t.Context()))
	assert.False(t, a.conn.Connected())

	cfg.Store.Default = ""
	assert.NoError(t, a.connectDefault(t.Context()))
}

func TestNewApp_BadCatalog(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "absent.yaml")

	_, err = newApp(cfg, logging.Noop())
	assert.Error(t, err)
}
