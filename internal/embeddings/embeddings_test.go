package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewService(t *testing.T) {
	svc, err := NewService(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", svc.config.BaseURL)
	assert.Equal(t, "nomic-embed-text", svc.config.Model)
}

func TestEmbedQuery(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "eco packaging", req.Prompt)

		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	emb, err := svc.EmbedQuery(context.Background(), "eco packaging")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb)
}

func TestEmbedQueryEmptyText(t *testing.T) {
	svc, err := NewService(Config{}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQueryServerError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedQueryEmptyEmbedding(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	})

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedDocuments(t *testing.T) {
	var calls int
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{float32(calls)}})
	})

	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	embs, err := svc.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, embs, 3)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []float32{1}, embs[0])
	assert.Equal(t, []float32{3}, embs[2])
}

func TestEmbedDocumentsEmpty(t *testing.T) {
	svc, err := NewService(Config{}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
