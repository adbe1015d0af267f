package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 100, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 4, cfg.Models.TopK)
	assert.Equal(t, 0.7, cfg.Models.DefaultTemperature)
	assert.Equal(t, "models/gemini-embedding-001", cfg.Models.DefaultEmbedding)
	assert.Equal(t, cfg.Database.URL, cfg.Vector.URL)
	assert.Equal(t, time.Hour, cfg.Redis.CacheTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingestion:
  chunk_size: 800
  chunk_overlap: 80
models:
  top_k: 6
`), 0o600))

	t.Setenv("RAGFLOW_SERVER_ADDR", ":9999")
	t.Setenv("SERPAPI_API_KEY", "serp-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 80, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 6, cfg.Models.TopK)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "serp-key", cfg.Search.APIKey)
}

func TestValidateOverlap(t *testing.T) {
	cfg := Default()
	cfg.Ingestion.ChunkOverlap = cfg.Ingestion.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg.Ingestion.ChunkOverlap = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateDimension(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 768, cfg.Vector.Dimension)

	cfg.Vector.Dimension = 0
	assert.ErrorContains(t, cfg.Validate(), "vector.dimension")
}
