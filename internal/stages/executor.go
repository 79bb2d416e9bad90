// Package stages implements the generation stages of the content pipeline
// against a local Ollama completion endpoint. Each stage renders a structured
// prompt, requests a JSON completion and decodes it into the stage's typed
// output.
package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// stagesTracer for OpenTelemetry instrumentation.
var stagesTracer = otel.Tracer("contentd.stages")

// Sentinel errors for stage execution.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the completion request failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrMalformedOutput indicates the model returned something that is not
	// the expected JSON document.
	ErrMalformedOutput = errors.New("malformed model output")
)

// Config holds configuration for the Ollama stage executor.
type Config struct {
	// BaseURL is the Ollama server URL.
	BaseURL string

	// Model is the completion model name.
	Model string

	// Temperature controls sampling randomness.
	Temperature float64

	// Timeout bounds a single completion request. The orchestrator applies
	// its own per-stage deadline on top of this.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "mistral"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Timeout == 0 {
		c.Timeout = 90 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %f outside [0,2]", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// OllamaExecutor runs generation stages against an Ollama server.
type OllamaExecutor struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOllamaExecutor creates a stage executor.
func NewOllamaExecutor(config Config, logger *zap.Logger) (*OllamaExecutor, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaExecutor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Execute runs one stage: renders its prompt, requests a JSON completion and
// decodes it into a validated stage result.
func (e *OllamaExecutor) Execute(ctx context.Context, req pipeline.StageRequest) (*pipeline.StageResult, error) {
	ctx, span := stagesTracer.Start(ctx, "OllamaExecutor.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", string(req.Stage)),
		attribute.String("model", e.config.Model),
	)

	prompt, err := buildPrompt(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := decodeResult(req, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("stage output rejected",
			zap.String("stage", string(req.Stage)),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// generate performs one completion call against /api/generate.
func (e *OllamaExecutor) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   e.config.Model,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: generateOptions{Temperature: e.config.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(e.config.BaseURL, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(gen.Response) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}
	return gen.Response, nil
}

// extractJSON trims any prose the model wrapped around the JSON document.
func extractJSON(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	return raw[start : end+1], nil
}

// decodeResult decodes the raw completion into the typed output for the
// requested stage and validates the cardinality contract.
func decodeResult(req pipeline.StageRequest, raw string) (*pipeline.StageResult, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	result := &pipeline.StageResult{Stage: req.Stage, Platform: req.Platform}

	var target any
	switch req.Stage {
	case pipeline.StageCopywriter:
		result.Copywriter = &pipeline.CopywriterOutput{}
		target = result.Copywriter
	case pipeline.StageEditor:
		result.Editor = &pipeline.EditorOutput{}
		target = result.Editor
	case pipeline.StageImages:
		result.Images = &pipeline.ImagesOutput{}
		target = result.Images
	case pipeline.StageProduction:
		result.Production = &pipeline.ProductionOutput{}
		target = result.Production
	case pipeline.StageIdeas:
		result.Ideas = &pipeline.IdeasOutput{}
		target = result.Ideas
	case pipeline.StagePublico:
		result.Publico = &pipeline.PublicoOutput{}
		target = result.Publico
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrMalformedOutput, req.Stage)
	}

	if err := json.Unmarshal([]byte(doc), target); err != nil {
		return nil, fmt.Errorf("%w: decoding %s output: %v", ErrMalformedOutput, req.Stage, err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Ensure OllamaExecutor satisfies the orchestrator contract.
var _ pipeline.StageExecutor = (*OllamaExecutor)(nil)
