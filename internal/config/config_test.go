package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Observability.EnableTelemetry)
	assert.Equal(t, "contentd", cfg.Observability.ServiceName)
	assert.Equal(t, "./data/memory", cfg.Memory.Path)
	assert.True(t, cfg.Memory.Compress)
	assert.Equal(t, 1000, cfg.Memory.ChunkSize)
	assert.Equal(t, 200, cfg.Memory.ChunkOverlap)
	assert.Equal(t, "http://localhost:11434", cfg.Embeddings.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, "mistral", cfg.Generation.Model)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.StageTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "9001")
	t.Setenv("MEMORY_CHUNK_SIZE", "500")
	t.Setenv("MEMORY_CHUNK_OVERLAP", "50")
	t.Setenv("GENERATION_MODEL", "llama3")
	t.Setenv("GENERATION_TEMPERATURE", "0.2")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "30s")
	t.Setenv("OBSERVABILITY_ENABLE_TELEMETRY", "false")

	cfg := Load()

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Memory.ChunkSize)
	assert.Equal(t, 50, cfg.Memory.ChunkOverlap)
	assert.Equal(t, "llama3", cfg.Generation.Model)
	assert.InDelta(t, 0.2, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StageTimeout)
	assert.False(t, cfg.Observability.EnableTelemetry)
}

func TestLoadIgnoresUnparsableEnv(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "not-a-port")
	t.Setenv("GENERATION_TEMPERATURE", "warm")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.StageTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.ServiceName = ""
			},
			wantErr: "service name required",
		},
		{
			name:    "empty memory path",
			mutate:  func(c *Config) { c.Memory.Path = "" },
			wantErr: "memory path",
		},
		{
			name:    "overlap equals size",
			mutate:  func(c *Config) { c.Memory.ChunkOverlap = c.Memory.ChunkSize },
			wantErr: "chunk overlap",
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.Memory.ChunkOverlap = -1 },
			wantErr: "chunk overlap",
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Generation.Temperature = 2.5 },
			wantErr: "invalid temperature",
		},
		{
			name:    "zero stage timeout",
			mutate:  func(c *Config) { c.Pipeline.StageTimeout = 0 },
			wantErr: "stage timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  http_port: 9100
memory:
  path: /tmp/contentd-memory
  chunk_size: 800
  chunk_overlap: 100
generation:
  model: llama3
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/tmp/contentd-memory", cfg.Memory.Path)
	assert.Equal(t, 800, cfg.Memory.ChunkSize)
	assert.Equal(t, 100, cfg.Memory.ChunkOverlap)
	assert.Equal(t, "llama3", cfg.Generation.Model)
	// Unset fields fall back to defaults.
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoadWithFileEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9100\n"), 0o600))

	t.Setenv("SERVER_HTTP_PORT", "9200")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoadWithFileMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoadWithFileRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFileRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 70000\n"), 0o600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}
