package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, MEMORY_CHUNK_SIZE, etc.)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/contentd/config.yaml is used; a missing file is not
// an error.
//
// Environment variables use underscore separator and are uppercased. The
// transformer maps them onto YAML field names, splitting on the first
// underscore:
//
//	SERVER_HTTP_PORT -> server.http_port
//	MEMORY_CHUNK_OVERLAP -> memory.chunk_overlap
//	GENERATION_BASE_URL -> generation.base_url
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "contentd", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. SERVER_HTTP_PORT becomes
	// server.http_port: the first underscore separates the section, the
	// rest stays part of the field name.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	defaults := Load()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = defaults.Observability.ServiceName
	}

	if cfg.Memory.Path == "" {
		cfg.Memory.Path = defaults.Memory.Path
	}
	if cfg.Memory.ChunkSize == 0 {
		cfg.Memory.ChunkSize = defaults.Memory.ChunkSize
	}
	if cfg.Memory.ChunkOverlap == 0 {
		cfg.Memory.ChunkOverlap = defaults.Memory.ChunkOverlap
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = defaults.Embeddings.BaseURL
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = defaults.Embeddings.Model
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = defaults.Embeddings.Timeout
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = defaults.Generation.BaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaults.Generation.Model
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = defaults.Generation.Temperature
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = defaults.Generation.Timeout
	}

	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = defaults.Pipeline.StageTimeout
	}
	if cfg.Pipeline.BrandPersona == "" {
		cfg.Pipeline.BrandPersona = defaults.Pipeline.BrandPersona
	}
}
