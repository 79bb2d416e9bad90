// Package embeddings provides embedding generation via an Ollama endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the Ollama base URL.
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// Timeout bounds each embedding call.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings through the Ollama /api/embeddings endpoint.
type Service struct {
	config  Config
	client  *http.Client
	logger  *zap.Logger
	metrics *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// embedRequest is the request body for the Ollama embeddings endpoint.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the response body from the Ollama embeddings endpoint.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	body, err := json.Marshal(embedRequest{Model: s.config.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, msg)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbeddingFailed)
	}

	return out.Embedding, nil
}

// EmbedDocuments generates embeddings for multiple texts.
//
// Ollama's embeddings endpoint takes one prompt per call, so documents are
// embedded sequentially. A failure on any document fails the batch.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	start := time.Now()
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := s.EmbedQuery(ctx, text)
		if err != nil {
			err = fmt.Errorf("embedding document %d of %d: %w", i+1, len(texts), err)
			s.metrics.RecordBatch(ctx, s.config.Model, len(texts), time.Since(start), err)
			return nil, err
		}
		embeddings[i] = emb
	}
	s.metrics.RecordBatch(ctx, s.config.Model, len(texts), time.Since(start), nil)

	s.logger.Debug("embedded documents",
		zap.Int("count", len(texts)),
		zap.String("model", s.config.Model),
		zap.Duration("duration", time.Since(start)),
	)

	return embeddings, nil
}

// Ensure Service implements Embedder.
var _ Embedder = (*Service)(nil)
