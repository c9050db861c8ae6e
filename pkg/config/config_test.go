package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cellar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenMinimal(t *testing.T) {
	path := writeConfig(t, "refStore:\n  kind: memory\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.BlobTiers, 1)
	assert.Equal(t, "memory", cfg.BlobTiers[0].Kind)
	assert.Equal(t, "memory", cfg.RefStore.Kind)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.MetricsAddr)
	assert.Equal(t, "127.0.0.1:9091", cfg.Server.HealthAddr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadParsesFullDocument(t *testing.T) {
	path := writeConfig(t, `
blobTiers:
  - kind: memory
  - kind: bolt
    path: /var/lib/cellar/blobs.db
refStore:
  kind: raft
raft:
  nodeID: node-1
  bindAddr: 127.0.0.1:8100
  dataDir: /var/lib/cellar/raft
  join: ""
server:
  metricsAddr: 127.0.0.1:9999
  healthAddr: 127.0.0.1:9998
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.BlobTiers, 2)
	assert.Equal(t, "bolt", cfg.BlobTiers[1].Kind)
	assert.Equal(t, "/var/lib/cellar/blobs.db", cfg.BlobTiers[1].Path)
	assert.Equal(t, "raft", cfg.RefStore.Kind)
	require.NotNil(t, cfg.Raft)
	assert.Equal(t, "node-1", cfg.Raft.NodeID)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.MetricsAddr)
}

func TestLoadRejectsUnknownBlobKind(t *testing.T) {
	path := writeConfig(t, "blobTiers:\n  - kind: nosql\nrefStore:\n  kind: memory\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsFileTierWithoutPath(t *testing.T) {
	path := writeConfig(t, "blobTiers:\n  - kind: file\nrefStore:\n  kind: memory\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsRaftRefStoreWithoutBlock(t *testing.T) {
	path := writeConfig(t, "refStore:\n  kind: raft\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsPostgresTierWithoutDSN(t *testing.T) {
	path := writeConfig(t, "blobTiers:\n  - kind: postgres\nrefStore:\n  kind: memory\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "refStore:\n  kind: memory\nbogusField: true\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildBlobStoreWiresMemoryTier(t *testing.T) {
	cfg := &Config{BlobTiers: []BlobTierConfig{{Kind: "memory"}}, RefStore: RefStoreConfig{Kind: "memory"}}
	cfg.applyDefaults()

	store, err := cfg.BuildBlobStore()
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestBuildRefStoreWiresMemoryBackend(t *testing.T) {
	cfg := &Config{RefStore: RefStoreConfig{Kind: "memory"}}
	cfg.applyDefaults()

	store, err := cfg.BuildRefStore()
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestBuildSessionWiresMemoryBackends(t *testing.T) {
	cfg := &Config{RefStore: RefStoreConfig{Kind: "memory"}}
	cfg.applyDefaults()

	s, err := cfg.BuildSession()
	require.NoError(t, err)
	assert.NotNil(t, s)
}
