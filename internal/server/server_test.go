package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/memory"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// fakeExecutor returns contract-valid outputs, optionally failing chosen
// stages.
type fakeExecutor struct {
	fail map[pipeline.Stage]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, req pipeline.StageRequest) (*pipeline.StageResult, error) {
	if f.fail[req.Stage] {
		return nil, errors.New("backend unavailable")
	}
	res := pipeline.StageResult{Stage: req.Stage, Platform: req.Platform}
	switch req.Stage {
	case pipeline.StageCopywriter:
		res.Copywriter = &pipeline.CopywriterOutput{
			Title:       "t",
			Hooks:       []string{"h1", "h2", "h3"},
			Script:      "script",
			Description: "d",
			Hashtags:    []string{"#1", "#2", "#3", "#4", "#5"},
			CTA:         "cta",
		}
	case pipeline.StageEditor:
		res.Editor = &pipeline.EditorOutput{VersionA: "a", VersionB: "b"}
	case pipeline.StageImages:
		res.Images = &pipeline.ImagesOutput{
			ImagePrompts: []pipeline.ImagePrompt{{Prompt: "p1"}, {Prompt: "p2"}, {Prompt: "p3"}},
		}
	case pipeline.StageProduction:
		res.Production = &pipeline.ProductionOutput{
			FilmingPlans:   make([]pipeline.FilmingPlan, 5),
			PresenterLines: []string{"l1", "l2", "l3", "l4", "l5", "l6"},
			EditingRhythm:  "fast",
		}
	case pipeline.StageIdeas:
		ideas := make([]pipeline.ContentIdea, 7)
		for i := range ideas {
			ideas[i] = pipeline.ContentIdea{Title: fmt.Sprintf("i%d", i), Concept: "c", ViralPotential: 0.5}
		}
		res.Ideas = &pipeline.IdeasOutput{ContentIdeas: ideas}
	case pipeline.StagePublico:
		res.Publico = &pipeline.PublicoOutput{Response: "thanks!"}
	}
	return &res, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r % 13)
	}
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		vec[0], sum = 1, 1
	}
	for i := range vec {
		vec[i] /= sum
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.EmbedQuery(ctx, t)
	}
	return out, nil
}

func newTestServer(t *testing.T, exec *fakeExecutor) *Server {
	t.Helper()

	mem, err := memory.NewStore(memory.Config{Path: t.TempDir()}, fakeEmbedder{}, zap.NewNop())
	require.NoError(t, err)

	orch, err := pipeline.NewOrchestrator(exec, mem, pipeline.NewTaskStore(), pipeline.Config{
		StageTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	s, err := NewServer(orch, mem, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServerRequiresOrchestrator(t *testing.T) {
	_, err := NewServer(nil, nil, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestRootListsEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RootResponse](t, rec)
	assert.Equal(t, "/content/create", resp.Endpoints["create_content"])
	assert.Equal(t, "running", resp.Status)
}

func TestCreateContentFlow(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/create",
		`{"topic":"city gardening","platforms":["tiktok","instagram"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateContentResponse](t, rec)
	require.NotEmpty(t, created.TaskID)
	assert.Equal(t, "pending", created.Status)

	require.Eventually(t, func() bool {
		task, err := s.orchestrator.Tasks().Get(created.TaskID)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/content/task/"+created.TaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[TaskResponse](t, rec)
	assert.Equal(t, pipeline.StatusCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Len(t, task.Result.Copywriter.Hooks, 3)
	assert.Len(t, task.Result.Images, 2)
	assert.Len(t, task.Result.Production, 2)
}

func TestCreateContentRejectsInvalidBrief(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/create", `{"platforms":["tiktok"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateContentRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/create", `{"topic": 42`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodGet, "/content/task/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskErrorReported(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{fail: map[pipeline.Stage]bool{pipeline.StageCopywriter: true}})

	rec := doJSON(t, s, http.MethodPost, "/content/create", `{"topic":"x"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode[CreateContentResponse](t, rec)

	require.Eventually(t, func() bool {
		task, err := s.orchestrator.Tasks().Get(created.TaskID)
		return err == nil && task.Status == pipeline.StatusError
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/content/task/"+created.TaskID, "")
	task := decode[TaskResponse](t, rec)
	assert.Equal(t, pipeline.StatusError, task.Status)
	assert.NotEmpty(t, task.Reason)
}

func TestListAndDeleteTasks(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/create", `{"topic":"a"}`)
	created := decode[CreateContentResponse](t, rec)

	rec = doJSON(t, s, http.MethodGet, "/content/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListTasksResponse](t, rec)
	require.Equal(t, 1, list.TotalTasks)
	assert.Equal(t, "a", list.Tasks[0].BriefTopic)

	rec = doJSON(t, s, http.MethodDelete, "/content/task/"+created.TaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/content/task/"+created.TaskID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateIdeas(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/ideas", `{"topic":"street food"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ideas := decode[pipeline.IdeasOutput](t, rec)
	assert.Len(t, ideas.ContentIdeas, 7)
}

func TestGenerateIdeasBackendFailure(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{fail: map[pipeline.Stage]bool{pipeline.StageIdeas: true}})

	rec := doJSON(t, s, http.MethodPost, "/content/ideas", `{"topic":"street food"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEditScript(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/edit", `{"script":"raw cut"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[pipeline.EditorOutput](t, rec)
	assert.Equal(t, "a", edited.VersionA)
	assert.Equal(t, "b", edited.VersionB)
}

func TestEditScriptRequiresScript(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/edit", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondToPublic(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/public/respond",
		`{"comment":"love this!","platform":"tiktok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[pipeline.PublicoOutput](t, rec)
	assert.Equal(t, "thanks!", resp.Response)
	assert.False(t, resp.EscalateToSupport)
}

func TestRespondToPublicFallsBack(t *testing.T) {
	// A failed responder stage still answers 200 with the escalation
	// fallback.
	s := newTestServer(t, &fakeExecutor{fail: map[pipeline.Stage]bool{pipeline.StagePublico: true}})

	rec := doJSON(t, s, http.MethodPost, "/public/respond", `{"comment":"where is my order?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[pipeline.PublicoOutput](t, rec)
	assert.True(t, resp.EscalateToSupport)
	assert.NotEmpty(t, resp.Response)
}

func TestRespondToPublicRequiresComment(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/public/respond", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/memory/guidelines",
		`{"title":"Voice","content":"always friendly, never pushy"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	stored := decode[IngestResponse](t, rec)
	assert.NotEmpty(t, stored.SourceID)

	rec = doJSON(t, s, http.MethodPost, "/memory/trends",
		`{"trend":"silent vlogs","description":"no-talking content","platforms":["youtube"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/memory/search?category=brand-knowledge&q=friendly&k=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	search := decode[MemorySearchResponse](t, rec)
	require.Len(t, search.Results, 1)
	assert.Contains(t, search.Results[0].Content, "friendly")

	rec = doJSON(t, s, http.MethodGet, "/memory/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[memory.Stats](t, rec)
	assert.Equal(t, 1, stats.BrandGuidelines)
	assert.Equal(t, 1, stats.TrendInsights)

	rec = doJSON(t, s, http.MethodDelete, "/memory/brand-knowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/memory/gossip", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemorySearchValidation(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodGet, "/memory/search?category=brand-knowledge", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/memory/search?category=brand-knowledge&q=x&k=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemorySearchEmptyIsOK(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodGet, "/memory/search?category=trend-insight&q=anything", "")
	require.Equal(t, http.StatusOK, rec.Code)
	search := decode[MemorySearchResponse](t, rec)
	assert.Empty(t, search.Results)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{})

	rec := doJSON(t, s, http.MethodPost, "/content/create", `{"topic":"a"}`)
	created := decode[CreateContentResponse](t, rec)
	require.Eventually(t, func() bool {
		task, err := s.orchestrator.Tasks().Get(created.TaskID)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, 1, stats.TotalTasks)
	assert.Equal(t, 1, stats.Completed)
	require.NotNil(t, stats.Memory)
	assert.Equal(t, 1, stats.Memory.ContentHistory)
}
