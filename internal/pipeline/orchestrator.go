package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// pipelineTracer for OpenTelemetry instrumentation.
var pipelineTracer = otel.Tracer("contentd.pipeline")

// StageRequest carries the structured input for one stage execution.
// Stage and Brief are always set; the remaining fields depend on the stage:
// Platform and Script for per-platform stages, Script for the editor,
// Comment and Persona for the public responder.
type StageRequest struct {
	Stage    Stage
	Brief    Brief
	Platform Platform
	Script   string
	Comment  string
	Persona  string
	Context  string
}

// StageExecutor runs one named generation stage.
//
// Implementations call an external completion provider and must return either
// a validated StageResult or an error. The orchestrator treats any error,
// including a deadline, as a stage failure; it never retries.
type StageExecutor interface {
	Execute(ctx context.Context, req StageRequest) (*StageResult, error)
}

// Memory is the retrieval surface the orchestrator consumes. Both operations
// are degradable: BuildContext returns "" on any internal failure and a
// StoreContentPackage error is logged, never propagated.
type Memory interface {
	BuildContext(ctx context.Context, brief Brief) string
	StoreContentPackage(ctx context.Context, pkg *Package) (string, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// StageTimeout bounds each external stage call. A timed-out call is a
	// stage failure, not a crash.
	StageTimeout time.Duration

	// BrandPersona is handed to the public responder stage.
	BrandPersona string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.StageTimeout == 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.BrandPersona == "" {
		c.BrandPersona = "a young, relaxed brand voice"
	}
}

// Orchestrator builds the stage graph for a brief, schedules stage execution
// and aggregates results into a package.
//
// Stage graph: copywriter and ideas have no dependencies and run
// concurrently; images[P] and production[P] for every platform P depend on
// the completed copywriter script and run concurrently once it exists. The
// editor is a standalone on-demand operation, not auto-chained.
type Orchestrator struct {
	executor StageExecutor
	memory   Memory
	tasks    *TaskStore
	config   Config
	logger   *zap.Logger
	metrics  *Metrics
}

// NewOrchestrator creates an orchestrator. memory may be nil to disable
// retrieval augmentation.
func NewOrchestrator(executor StageExecutor, memory Memory, tasks *TaskStore, config Config, logger *zap.Logger) (*Orchestrator, error) {
	if executor == nil {
		return nil, fmt.Errorf("stage executor is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Orchestrator{
		executor: executor,
		memory:   memory,
		tasks:    tasks,
		config:   config,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// Tasks exposes the task store for status polling.
func (o *Orchestrator) Tasks() *TaskStore { return o.tasks }

// Submit registers a brief as a pending task and schedules its execution.
// It returns the task id immediately; the caller polls the task store for
// progress. Execution continues even if the submitting context is cancelled.
func (o *Orchestrator) Submit(ctx context.Context, brief Brief) (string, error) {
	brief.ApplyDefaults()
	if err := brief.Validate(); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	if err := o.tasks.Create(taskID, brief); err != nil {
		return "", err
	}
	o.metrics.RecordSubmitted(ctx)

	o.logger.Info("task submitted",
		zap.String("task_id", taskID),
		zap.String("topic", brief.Topic),
		zap.Int("platforms", len(brief.Platforms)),
	)

	go o.processBrief(context.WithoutCancel(ctx), taskID, brief)

	return taskID, nil
}

// processBrief runs the full stage graph for one task.
func (o *Orchestrator) processBrief(ctx context.Context, taskID string, brief Brief) {
	ctx, span := pipelineTracer.Start(ctx, "Orchestrator.processBrief")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", taskID))

	start := time.Now()

	if err := o.tasks.SetStatus(taskID, StatusProcessing); err != nil {
		// Task was removed before execution started; nothing to do.
		o.logger.Debug("skipping removed task", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	var retrieval string
	if o.memory != nil {
		retrieval = o.memory.BuildContext(ctx, brief)
	}

	pkg := NewPackage(taskID, brief)
	var (
		mu      sync.Mutex
		failure error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if failure == nil {
			failure = err
		}
	}

	// Independent stages: copywriter and ideas run concurrently.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := o.runStage(ctx, StageRequest{Stage: StageCopywriter, Brief: brief, Context: retrieval})
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		pkg.Copywriter = res.Copywriter
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		res, err := o.runStage(ctx, StageRequest{Stage: StageIdeas, Brief: brief, Context: retrieval})
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		pkg.Ideas = res.Ideas
		mu.Unlock()
	}()
	wg.Wait()

	// A failed stage stops scheduling: the per-platform stages depend on the
	// copywriter script and are never started. Partial results stay in the
	// package for diagnostics.
	if failure != nil {
		o.finish(ctx, taskID, pkg, failure, start)
		return
	}

	// Every images[P] and production[P] receives the same completed script.
	script := pkg.Copywriter.Script
	for _, platform := range brief.Platforms {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := o.runStage(ctx, StageRequest{Stage: StageImages, Brief: brief, Platform: platform, Script: script, Context: retrieval})
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			pkg.Images[platform] = res.Images
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			res, err := o.runStage(ctx, StageRequest{Stage: StageProduction, Brief: brief, Platform: platform, Script: script, Context: retrieval})
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			pkg.Production[platform] = res.Production
			mu.Unlock()
		}()
	}
	wg.Wait()

	o.finish(ctx, taskID, pkg, failure, start)
}

// finish records the terminal status and result package for a task. A task
// removed while stages were in flight is left removed; the late result is
// discarded.
func (o *Orchestrator) finish(ctx context.Context, taskID string, pkg *Package, failure error, start time.Time) {
	if failure != nil {
		pkg.Status = StatusError
		if err := o.tasks.Fail(taskID, failure.Error()); err != nil {
			o.logger.Warn("discarding result for missing task", zap.String("task_id", taskID), zap.Error(err))
			return
		}
		if err := o.tasks.AttachResult(taskID, pkg); err != nil {
			o.logger.Warn("failed to attach partial result", zap.String("task_id", taskID), zap.Error(err))
		}
		o.metrics.RecordFinished(ctx, false, time.Since(start))
		o.logger.Warn("task failed",
			zap.String("task_id", taskID),
			zap.String("reason", failure.Error()),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}

	pkg.Status = StatusCompleted
	if err := o.tasks.SetStatus(taskID, StatusCompleted); err != nil {
		o.logger.Warn("discarding result for missing task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if err := o.tasks.AttachResult(taskID, pkg); err != nil {
		o.logger.Warn("failed to attach result", zap.String("task_id", taskID), zap.Error(err))
	}
	o.metrics.RecordFinished(ctx, true, time.Since(start))

	// Feed the finished package back into content history so future briefs
	// retrieve it. Failure here is retrieval degradation, not a task failure.
	if o.memory != nil {
		if _, err := o.memory.StoreContentPackage(ctx, pkg); err != nil {
			o.logger.Warn("failed to record package to memory", zap.String("task_id", taskID), zap.Error(err))
		}
	}

	o.logger.Info("task completed",
		zap.String("task_id", taskID),
		zap.Duration("duration", time.Since(start)),
	)
}

// runStage executes one stage with the configured timeout and validates its
// structured output at the boundary.
func (o *Orchestrator) runStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "Orchestrator.runStage")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", string(req.Stage)),
		attribute.String("platform", string(req.Platform)),
	)

	ctx, cancel := context.WithTimeout(ctx, o.config.StageTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.executor.Execute(ctx, req)
	o.metrics.RecordStage(ctx, req.Stage, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: stage %s timed out after %s", ErrStageFailed, req.Stage, o.config.StageTimeout)
		}
		return nil, fmt.Errorf("%w: stage %s: %v", ErrStageFailed, req.Stage, err)
	}
	if res == nil {
		span.SetStatus(codes.Error, "nil result")
		return nil, fmt.Errorf("%w: stage %s returned no result", ErrStageFailed, req.Stage)
	}
	if err := res.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("stage %s: %w", req.Stage, err)
	}

	span.SetStatus(codes.Ok, "success")
	o.logger.Debug("stage completed",
		zap.String("stage", string(req.Stage)),
		zap.String("platform", string(req.Platform)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// RespondToComment runs the public responder for one comment or DM. It never
// returns an error: any stage failure yields the safe fallback response
// flagged for human escalation.
func (o *Orchestrator) RespondToComment(ctx context.Context, comment string) PublicoOutput {
	res, err := o.runStage(ctx, StageRequest{
		Stage:   StagePublico,
		Comment: comment,
		Persona: o.config.BrandPersona,
	})
	if err != nil {
		o.logger.Warn("public responder failed, using fallback", zap.Error(err))
		return FallbackPublicoOutput()
	}
	return *res.Publico
}

// FallbackPublicoOutput is the user-safe response returned when the public
// responder stage fails.
func FallbackPublicoOutput() PublicoOutput {
	return PublicoOutput{
		Response:          "Sorry, we hit a technical problem on our side. Please try again in a few minutes.",
		FollowUp:          "If the problem persists, our support team will pick this up.",
		EscalateToSupport: true,
	}
}

// GenerateIdeas runs the ideation stage on its own for quick suggestions.
func (o *Orchestrator) GenerateIdeas(ctx context.Context, brief Brief) (*IdeasOutput, error) {
	brief.ApplyDefaults()
	if err := brief.Validate(); err != nil {
		return nil, err
	}

	var retrieval string
	if o.memory != nil {
		retrieval = o.memory.BuildContext(ctx, brief)
	}
	res, err := o.runStage(ctx, StageRequest{Stage: StageIdeas, Brief: brief, Context: retrieval})
	if err != nil {
		return nil, err
	}
	return res.Ideas, nil
}

// EditScript runs the editor stage on a finished script. It is invoked
// explicitly, never auto-chained after the copywriter.
func (o *Orchestrator) EditScript(ctx context.Context, brief Brief, script string) (*EditorOutput, error) {
	if script == "" {
		return nil, fmt.Errorf("%w: script is required", ErrInvalidBrief)
	}
	brief.ApplyDefaults()

	res, err := o.runStage(ctx, StageRequest{Stage: StageEditor, Brief: brief, Script: script})
	if err != nil {
		return nil, err
	}
	return res.Editor, nil
}
