// Package config provides configuration loading for contentd.
//
// Configuration is loaded from environment variables with sensible defaults,
// optionally seeded from a YAML file via LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete contentd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Memory        MemoryConfig        `koanf:"memory"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// MemoryConfig holds retrieval memory configuration.
type MemoryConfig struct {
	Path         string `koanf:"path"`
	Compress     bool   `koanf:"compress"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

// EmbeddingsConfig holds the embedding service configuration.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// GenerationConfig holds the completion backend configuration used by the
// generation stages.
type GenerationConfig struct {
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	StageTimeout time.Duration `koanf:"stage_timeout"`
	BrandPersona string        `koanf:"brand_persona"`
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//   - SERVER_HTTP_PORT: HTTP server port (default: 8000)
//   - SERVER_SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 10s)
//   - OBSERVABILITY_ENABLE_TELEMETRY: Enable OpenTelemetry (default: true)
//   - OBSERVABILITY_SERVICE_NAME: Service name for traces (default: contentd)
//   - MEMORY_PATH: Persistent memory directory (default: ./data/memory)
//   - MEMORY_COMPRESS: Compress persisted collections (default: true)
//   - MEMORY_CHUNK_SIZE: Chunk size in characters (default: 1000)
//   - MEMORY_CHUNK_OVERLAP: Chunk overlap in characters (default: 200)
//   - EMBEDDINGS_BASE_URL: Embedding server URL (default: http://localhost:11434)
//   - EMBEDDINGS_MODEL: Embedding model (default: nomic-embed-text)
//   - EMBEDDINGS_TIMEOUT: Per-request timeout (default: 30s)
//   - GENERATION_BASE_URL: Completion server URL (default: http://localhost:11434)
//   - GENERATION_MODEL: Completion model (default: mistral)
//   - GENERATION_TEMPERATURE: Sampling temperature (default: 0.7)
//   - GENERATION_TIMEOUT: Per-request timeout (default: 90s)
//   - PIPELINE_STAGE_TIMEOUT: Per-stage deadline (default: 2m)
//   - PIPELINE_BRAND_PERSONA: Persona for public responses
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_HTTP_PORT", 8000),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: getEnvBool("OBSERVABILITY_ENABLE_TELEMETRY", true),
			ServiceName:     getEnvString("OBSERVABILITY_SERVICE_NAME", "contentd"),
		},
		Memory: MemoryConfig{
			Path:         getEnvString("MEMORY_PATH", "./data/memory"),
			Compress:     getEnvBool("MEMORY_COMPRESS", true),
			ChunkSize:    getEnvInt("MEMORY_CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvInt("MEMORY_CHUNK_OVERLAP", 200),
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: getEnvString("EMBEDDINGS_BASE_URL", "http://localhost:11434"),
			Model:   getEnvString("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Timeout: getEnvDuration("EMBEDDINGS_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			BaseURL:     getEnvString("GENERATION_BASE_URL", "http://localhost:11434"),
			Model:       getEnvString("GENERATION_MODEL", "mistral"),
			Temperature: getEnvFloat("GENERATION_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("GENERATION_TIMEOUT", 90*time.Second),
		},
		Pipeline: PipelineConfig{
			StageTimeout: getEnvDuration("PIPELINE_STAGE_TIMEOUT", 2*time.Minute),
			BrandPersona: getEnvString("PIPELINE_BRAND_PERSONA", "young and relaxed brand voice"),
		},
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Memory.Path == "" {
		return errors.New("memory path is required")
	}
	if c.Memory.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk size: %d (must be positive)", c.Memory.ChunkSize)
	}
	if c.Memory.ChunkOverlap < 0 || c.Memory.ChunkOverlap >= c.Memory.ChunkSize {
		return fmt.Errorf("invalid chunk overlap: %d (must be in [0, chunk size))", c.Memory.ChunkOverlap)
	}

	if c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base URL is required")
	}
	if c.Embeddings.Timeout <= 0 {
		return errors.New("embeddings timeout must be positive")
	}

	if c.Generation.BaseURL == "" {
		return errors.New("generation base URL is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("invalid temperature: %f (must be in [0,2])", c.Generation.Temperature)
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("generation timeout must be positive")
	}

	if c.Pipeline.StageTimeout <= 0 {
		return errors.New("stage timeout must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
