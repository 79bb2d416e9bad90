// Package server provides the HTTP API for contentd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/memory"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Server provides HTTP endpoints for contentd.
type Server struct {
	echo         *echo.Echo
	orchestrator *pipeline.Orchestrator
	memory       *memory.Store
	logger       *zap.Logger
	config       *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. The memory store may be nil, in which
// case the memory endpoints report 503.
func NewServer(orchestrator *pipeline.Orchestrator, mem *memory.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orchestrator,
		memory:       mem,
		logger:       logger,
		config:       cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)

	content := s.echo.Group("/content")
	content.POST("/create", s.handleCreateContent)
	content.GET("/tasks", s.handleListTasks)
	content.GET("/task/:task_id", s.handleGetTask)
	content.DELETE("/task/:task_id", s.handleDeleteTask)
	content.POST("/ideas", s.handleGenerateIdeas)
	content.POST("/edit", s.handleEditScript)

	s.echo.POST("/public/respond", s.handleRespondToPublic)

	mem := s.echo.Group("/memory")
	mem.GET("/stats", s.handleMemoryStats)
	mem.GET("/search", s.handleMemorySearch)
	mem.POST("/guidelines", s.handleStoreGuideline)
	mem.POST("/trends", s.handleStoreTrend)
	mem.DELETE("/:category", s.handleClearCategory)
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrTaskExists), errors.Is(err, pipeline.ErrConflictingState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrInvalidBrief),
		errors.Is(err, memory.ErrUnknownCategory),
		errors.Is(err, memory.ErrEmptyText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrStageFailed), errors.Is(err, pipeline.ErrInvalidOutput):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// RootResponse is the response body for GET /.
type RootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, RootResponse{
		Message: "contentd multi-stage content API",
		Version: "1.0.0",
		Status:  "running",
		Endpoints: map[string]string{
			"create_content": "/content/create",
			"get_task":       "/content/task/{task_id}",
			"list_tasks":     "/content/tasks",
			"content_ideas":  "/content/ideas",
			"edit_script":    "/content/edit",
			"respond_public": "/public/respond",
			"memory_search":  "/memory/search",
			"health":         "/health",
		},
	})
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResponse is the response body for GET /stats.
type StatsResponse struct {
	TotalTasks int           `json:"total_tasks"`
	Pending    int           `json:"pending"`
	Processing int           `json:"processing"`
	Completed  int           `json:"completed"`
	Errors     int           `json:"errors"`
	Memory     *memory.Stats `json:"memory,omitempty"`
}

func (s *Server) handleStats(c echo.Context) error {
	counts := s.orchestrator.Tasks().Counts()
	resp := StatsResponse{
		TotalTasks: counts.Total,
		Pending:    counts.Pending,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Errors:     counts.Errored,
	}
	if s.memory != nil {
		stats := s.memory.Stats(c.Request().Context())
		resp.Memory = &stats
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateContentResponse is the response body for POST /content/create.
type CreateContentResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleCreateContent(c echo.Context) error {
	var brief pipeline.Brief
	if err := c.Bind(&brief); err != nil {
		s.logger.Warn("invalid content brief", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	taskID, err := s.orchestrator.Submit(c.Request().Context(), brief)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusAccepted, CreateContentResponse{
		TaskID:  taskID,
		Status:  string(pipeline.StatusPending),
		Message: "content generation started; poll /content/task/{task_id}",
	})
}

// TaskResponse is the response body for GET /content/task/:task_id.
type TaskResponse struct {
	TaskID    string              `json:"task_id"`
	Status    pipeline.TaskStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Timestamp string              `json:"timestamp"`
	Result    *pipeline.Package   `json:"result,omitempty"`
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.orchestrator.Tasks().Get(c.Param("task_id"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, TaskResponse{
		TaskID:    task.ID,
		Status:    task.Status,
		Reason:    task.Reason,
		CreatedAt: task.CreatedAt,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Result:    task.Result,
	})
}

// TaskSummary is one entry in the GET /content/tasks listing.
type TaskSummary struct {
	TaskID     string              `json:"task_id"`
	Status     pipeline.TaskStatus `json:"status"`
	BriefTopic string              `json:"brief_topic"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ListTasksResponse is the response body for GET /content/tasks.
type ListTasksResponse struct {
	TotalTasks int           `json:"total_tasks"`
	Tasks      []TaskSummary `json:"tasks"`
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks := s.orchestrator.Tasks().List()
	summaries := make([]TaskSummary, len(tasks))
	for i, task := range tasks {
		summaries[i] = TaskSummary{
			TaskID:     task.ID,
			Status:     task.Status,
			BriefTopic: task.Brief.Topic,
			CreatedAt:  task.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, ListTasksResponse{
		TotalTasks: len(summaries),
		Tasks:      summaries,
	})
}

// DeleteTaskResponse is the response body for DELETE /content/task/:task_id.
type DeleteTaskResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	taskID := c.Param("task_id")
	if err := s.orchestrator.Tasks().Remove(taskID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, DeleteTaskResponse{
		Message: fmt.Sprintf("task %s removed", taskID),
	})
}

// IdeasRequest is the request body for POST /content/ideas.
type IdeasRequest struct {
	Topic    string            `json:"topic"`
	Audience string            `json:"audience"`
	Tonality pipeline.Tonality `json:"tonality"`
}

func (s *Server) handleGenerateIdeas(c echo.Context) error {
	var req IdeasRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	brief := pipeline.Brief{
		Topic:          req.Topic,
		TargetAudience: req.Audience,
		Tonality:       req.Tonality,
	}
	ideas, err := s.orchestrator.GenerateIdeas(c.Request().Context(), brief)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ideas)
}

// EditRequest is the request body for POST /content/edit.
type EditRequest struct {
	Script   string            `json:"script"`
	Tonality pipeline.Tonality `json:"tonality"`
}

func (s *Server) handleEditScript(c echo.Context) error {
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Script == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script field is required")
	}

	brief := pipeline.Brief{Topic: "script refinement", Tonality: req.Tonality}
	edited, err := s.orchestrator.EditScript(c.Request().Context(), brief, req.Script)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, edited)
}

// PublicCommentRequest is the request body for POST /public/respond.
type PublicCommentRequest struct {
	Comment  string            `json:"comment"`
	Platform pipeline.Platform `json:"platform"`
	PostID   string            `json:"post_id,omitempty"`
}

func (s *Server) handleRespondToPublic(c echo.Context) error {
	var req PublicCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Comment == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "comment field is required")
	}

	response := s.orchestrator.RespondToComment(c.Request().Context(), req.Comment)
	return c.JSON(http.StatusOK, response)
}

func (s *Server) handleMemoryStats(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}
	return c.JSON(http.StatusOK, s.memory.Stats(c.Request().Context()))
}

// MemorySearchResponse is the response body for GET /memory/search.
type MemorySearchResponse struct {
	Category memory.Category          `json:"category"`
	Query    string                   `json:"query"`
	Results  []memory.RetrievalResult `json:"results"`
}

func (s *Server) handleMemorySearch(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}

	category := memory.Category(c.QueryParam("category"))
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	k := 5
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = parsed
	}

	results := s.memory.Search(c.Request().Context(), category, query, k)
	if results == nil {
		results = []memory.RetrievalResult{}
	}
	return c.JSON(http.StatusOK, MemorySearchResponse{
		Category: category,
		Query:    query,
		Results:  results,
	})
}

// GuidelineRequest is the request body for POST /memory/guidelines.
type GuidelineRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

// IngestResponse reports a stored memory source.
type IngestResponse struct {
	SourceID string `json:"source_id"`
}

func (s *Server) handleStoreGuideline(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}

	var req GuidelineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	id, err := s.memory.StoreBrandGuideline(c.Request().Context(), req.Title, req.Content, req.Kind)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, IngestResponse{SourceID: id})
}

// TrendRequest is the request body for POST /memory/trends.
type TrendRequest struct {
	Trend       string              `json:"trend"`
	Description string              `json:"description"`
	Platforms   []pipeline.Platform `json:"platforms,omitempty"`
}

func (s *Server) handleStoreTrend(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}

	var req TrendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Trend == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trend field is required")
	}

	id, err := s.memory.StoreTrendInsight(c.Request().Context(), req.Trend, req.Description, req.Platforms)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, IngestResponse{SourceID: id})
}

// ClearResponse is the response body for DELETE /memory/:category.
type ClearResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleClearCategory(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}

	category := memory.Category(c.Param("category"))
	if err := s.memory.Clear(c.Request().Context(), category); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ClearResponse{
		Message: fmt.Sprintf("memory category %s cleared", category),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
