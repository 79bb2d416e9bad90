// Contentd is a multi-stage content generation daemon with an HTTP API.
//
// This binary starts the contentd HTTP server with full service
// initialization: the embedding service, the retrieval memory store, the
// Ollama stage executor and the pipeline orchestrator.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	contentd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=8000 GENERATION_MODEL=mistral contentd
//
//	# Use a config file
//	contentd -config /etc/contentd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/embeddings"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/memory"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
	"github.com/fyrsmithlabs/contentd/internal/server"
	"github.com/fyrsmithlabs/contentd/internal/stages"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  contentd           Start the contentd daemon\n")
			fmt.Fprintf(os.Stderr, "  contentd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *logLevel); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("contentd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the contentd server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize the logger
//  3. Create the embedding service and retrieval memory store
//  4. Create the Ollama stage executor and pipeline orchestrator
//  5. Start the HTTP server
//  6. Gracefully shut down on context cancellation
func run(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  logLevel,
		Fields: map[string]string{"service": cfg.Observability.ServiceName},
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting contentd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout),
	)

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	// The memory store is optional infrastructure: without it the pipeline
	// still runs, just without retrieval context.
	var mem *memory.Store
	mem, err = memory.NewStore(memory.Config{
		Path:         cfg.Memory.Path,
		Compress:     cfg.Memory.Compress,
		ChunkSize:    cfg.Memory.ChunkSize,
		ChunkOverlap: cfg.Memory.ChunkOverlap,
	}, embedder, logger)
	if err != nil {
		logger.Warn("memory store unavailable, continuing without retrieval", zap.Error(err))
		mem = nil
	}

	executor, err := stages.NewOllamaExecutor(stages.Config{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Timeout:     cfg.Generation.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating stage executor: %w", err)
	}

	var orchestratorMemory pipeline.Memory
	if mem != nil {
		orchestratorMemory = mem
	}
	orchestrator, err := pipeline.NewOrchestrator(executor, orchestratorMemory, pipeline.NewTaskStore(), pipeline.Config{
		StageTimeout: cfg.Pipeline.StageTimeout,
		BrandPersona: cfg.Pipeline.BrandPersona,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	srv, err := server.NewServer(orchestrator, mem, logger, &server.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	logger.Info("server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("embedding_model", cfg.Embeddings.Model),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}
