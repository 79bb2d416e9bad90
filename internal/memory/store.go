// Package memory provides the retrieval memory engine: chunked, embedded
// storage of prior content, brand knowledge and trend insights, with
// similarity search and context assembly for generation stages.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/chunker"
	"github.com/fyrsmithlabs/contentd/internal/embeddings"
)

// memoryTracer for OpenTelemetry instrumentation.
var memoryTracer = otel.Tracer("contentd.memory")

// Sentinel errors for memory operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownCategory is returned for a category outside the three
	// supported collections.
	ErrUnknownCategory = errors.New("unknown memory category")

	// ErrEmptyText indicates empty ingest text.
	ErrEmptyText = errors.New("empty text")
)

// Category identifies one of the three chunk collections.
type Category string

const (
	CategoryContentHistory Category = "content-history"
	CategoryBrandKnowledge Category = "brand-knowledge"
	CategoryTrendInsight   Category = "trend-insight"
)

// AllCategories returns the supported categories.
func AllCategories() []Category {
	return []Category{CategoryContentHistory, CategoryBrandKnowledge, CategoryTrendInsight}
}

// collectionName maps a category to its persisted collection name.
func collectionName(c Category) (string, error) {
	switch c {
	case CategoryContentHistory:
		return "content_history", nil
	case CategoryBrandKnowledge:
		return "brand_knowledge", nil
	case CategoryTrendInsight:
		return "trend_insights", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}

// Relevance buckets a similarity score.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// relevanceFor buckets a cosine distance. The thresholds are a fixed
// contract: below 0.3 is high, below 0.6 medium, anything else low.
func relevanceFor(score float32) Relevance {
	switch {
	case score < 0.3:
		return RelevanceHigh
	case score < 0.6:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// RetrievalResult is one similarity search hit. Score is cosine distance:
// lower means more similar.
type RetrievalResult struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Score     float32           `json:"similarity_score"`
	Relevance Relevance         `json:"relevance"`
}

// Config holds configuration for the memory store.
type Config struct {
	// Path is the directory for persistent collection storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// ChunkSize and ChunkOverlap configure document chunking.
	ChunkSize    int
	ChunkOverlap int

	// ContentK, BrandK and TrendK are the retrieval depths per category
	// used by BuildContext.
	ContentK int
	BrandK   int
	TrendK   int

	// PreviewLength bounds each snippet included in an assembled context.
	PreviewLength int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/memory"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = chunker.DefaultOverlap
	}
	if c.ContentK == 0 {
		c.ContentK = 3
	}
	if c.BrandK == 0 {
		c.BrandK = 2
	}
	if c.TrendK == 0 {
		c.TrendK = 2
	}
	if c.PreviewLength == 0 {
		c.PreviewLength = 200
	}
}

// Store is the persistent, per-category retrieval memory.
//
// Each category maps to its own chromem collection so ingestion and search
// on different categories never contend; a per-category mutex serializes
// writes and collection swaps within a category.
type Store struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	chunker  *chunker.Chunker
	config   Config
	logger   *zap.Logger

	locks map[Category]*sync.Mutex
}

// NewStore creates a memory store with persistent collections under the
// configured path.
func NewStore(config Config, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	ch, err := chunker.New(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
	}
	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	locks := make(map[Category]*sync.Mutex, len(AllCategories()))
	for _, c := range AllCategories() {
		locks[c] = &sync.Mutex{}
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		chunker:  ch,
		config:   config,
		logger:   logger,
		locks:    locks,
	}

	logger.Info("memory store initialized",
		zap.String("path", config.Path),
		zap.Int("chunk_size", config.ChunkSize),
		zap.Int("chunk_overlap", config.ChunkOverlap),
	)

	return s, nil
}

// embeddingFunc adapts the embedder for chromem query embedding.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// collection gets or creates the chromem collection for a category.
func (s *Store) collection(category Category) (*chromem.Collection, error) {
	name, err := collectionName(category)
	if err != nil {
		return nil, err
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return col, nil
}

// Ingest chunks text, embeds every chunk and persists them under the given
// category. Each chunk record is keyed by source id, a fresh ingest id and
// the chunk index, and carries the total chunk count of its ingest.
//
// Re-ingesting the same source id appends new chunk records; callers that
// need replacement must Clear the category first.
func (s *Store) Ingest(ctx context.Context, category Category, sourceID, text string, metadata map[string]string) (string, error) {
	ctx, span := memoryTracer.Start(ctx, "Store.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	col, err := s.collection(category)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	chunks := s.chunker.Split(text)
	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	// Chunk IDs carry a per-call ingest id so re-ingesting a source id
	// appends records instead of overwriting the previous ingest's chunks.
	ingestID := uuid.NewString()

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]string, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["source_id"] = sourceID
		meta["chunk_index"] = strconv.Itoa(i)
		meta["total_chunks"] = strconv.Itoa(len(chunks))
		meta["category"] = string(category)

		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("%s_%s_chunk_%d", sourceID, ingestID, i),
			Content:   chunk,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	lock := s.locks[category]
	lock.Lock()
	err = col.AddDocuments(ctx, docs, 1)
	lock.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks", len(docs)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("ingested source",
		zap.String("category", string(category)),
		zap.String("source_id", sourceID),
		zap.Int("chunks", len(docs)),
	)

	return sourceID, nil
}

// Search retrieves the k nearest chunks to the query within a category,
// sorted ascending by cosine distance (best match first).
//
// Retrieval is degradable: an empty store, an unknown category or an
// embedding failure yields an empty result, never an error to the caller.
func (s *Store) Search(ctx context.Context, category Category, query string, k int) []RetrievalResult {
	ctx, span := memoryTracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", string(category)),
		attribute.Int("k", k),
	)

	if query == "" || k <= 0 {
		return nil
	}

	col, err := s.collection(category)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("retrieval degraded: collection unavailable",
			zap.String("category", string(category)), zap.Error(err))
		return nil
	}

	// chromem requires k <= document count.
	count := col.Count()
	if count == 0 {
		return nil
	}
	if k > count {
		k = count
	}

	hits, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("retrieval degraded: query failed",
			zap.String("category", string(category)), zap.Error(err))
		return nil
	}

	results := make([]RetrievalResult, len(hits))
	for i, h := range hits {
		score := 1 - h.Similarity // cosine distance
		results[i] = RetrievalResult{
			ID:        h.ID,
			Content:   h.Content,
			Metadata:  h.Metadata,
			Score:     score,
			Relevance: relevanceFor(score),
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score < results[j].Score })

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results
}

// Clear drops a category's collection and recreates it empty.
func (s *Store) Clear(ctx context.Context, category Category) error {
	name, err := collectionName(category)
	if err != nil {
		return err
	}

	lock := s.locks[category]
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if _, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc()); err != nil {
		return fmt.Errorf("recreating collection %s: %w", name, err)
	}

	s.logger.Info("cleared memory category", zap.String("category", string(category)))
	return nil
}

// Stats summarizes the memory store for observability.
type Stats struct {
	Status          string `json:"status"`
	TotalDocuments  int    `json:"total_documents"`
	ContentHistory  int    `json:"content_history"`
	BrandGuidelines int    `json:"brand_guidelines"`
	TrendInsights   int    `json:"trend_insights"`
	Path            string `json:"path"`
}

// Stats returns per-category document counts. Failures are reported through
// the status flag rather than an error.
func (s *Store) Stats(ctx context.Context) Stats {
	stats := Stats{Status: "healthy", Path: s.config.Path}

	counts := map[Category]*int{
		CategoryContentHistory: &stats.ContentHistory,
		CategoryBrandKnowledge: &stats.BrandGuidelines,
		CategoryTrendInsight:   &stats.TrendInsights,
	}
	for _, category := range AllCategories() {
		col, err := s.collection(category)
		if err != nil {
			stats.Status = "error"
			continue
		}
		n := col.Count()
		*counts[category] = n
		stats.TotalDocuments += n
	}
	return stats
}
