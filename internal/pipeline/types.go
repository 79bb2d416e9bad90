// Package pipeline orchestrates content generation stages for a brief and
// tracks per-task status.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pipeline operations.
var (
	// ErrNotFound is returned when a task id is unknown.
	ErrNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task id that already exists.
	ErrTaskExists = errors.New("task already exists")

	// ErrConflictingState is returned for illegal status transitions or
	// result writes against a non-terminal task.
	ErrConflictingState = errors.New("conflicting task state")

	// ErrInvalidBrief indicates brief validation failure.
	ErrInvalidBrief = errors.New("invalid brief")

	// ErrStageFailed indicates a generation stage's external call errored.
	ErrStageFailed = errors.New("stage execution failed")

	// ErrInvalidOutput indicates a stage returned malformed structured output.
	ErrInvalidOutput = errors.New("invalid stage output")
)

// Platform is a content distribution platform.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
)

// AllPlatforms returns the supported platforms.
func AllPlatforms() []Platform {
	return []Platform{PlatformTikTok, PlatformYouTube, PlatformInstagram, PlatformLinkedIn, PlatformFacebook}
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTikTok, PlatformYouTube, PlatformInstagram, PlatformLinkedIn, PlatformFacebook:
		return true
	}
	return false
}

// Tonality is a voice for generated content.
type Tonality string

const (
	TonalityHumorous      Tonality = "humorous"
	TonalityProfessional  Tonality = "professional"
	TonalityCasual        Tonality = "casual"
	TonalityEducational   Tonality = "educational"
	TonalityInspirational Tonality = "inspirational"
)

// Valid reports whether t is a supported tonality.
func (t Tonality) Valid() bool {
	switch t {
	case TonalityHumorous, TonalityProfessional, TonalityCasual, TonalityEducational, TonalityInspirational:
		return true
	}
	return false
}

// Stage identifies a generation stage.
type Stage string

const (
	StageCopywriter Stage = "copywriter"
	StageEditor     Stage = "editor"
	StageImages     Stage = "images"
	StageProduction Stage = "production"
	StageIdeas      Stage = "ideas"
	StagePublico    Stage = "publico"
)

// Brief is the immutable input for a content generation task.
type Brief struct {
	Topic             string     `json:"topic"`
	Duration          int        `json:"duration"`
	Tonality          Tonality   `json:"tonality"`
	TargetAudience    string     `json:"target_audience"`
	Platforms         []Platform `json:"platforms"`
	AdditionalContext string     `json:"additional_context,omitempty"`
}

// ApplyDefaults fills unset brief fields.
func (b *Brief) ApplyDefaults() {
	if b.Duration == 0 {
		b.Duration = 60
	}
	if b.Tonality == "" {
		b.Tonality = TonalityCasual
	}
	if b.TargetAudience == "" {
		b.TargetAudience = "general audience"
	}
	if len(b.Platforms) == 0 {
		b.Platforms = []Platform{PlatformTikTok}
	}
}

// Validate validates the brief.
func (b Brief) Validate() error {
	if b.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidBrief)
	}
	if b.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidBrief, b.Duration)
	}
	if !b.Tonality.Valid() {
		return fmt.Errorf("%w: unknown tonality %q", ErrInvalidBrief, b.Tonality)
	}
	if len(b.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrInvalidBrief)
	}
	seen := make(map[Platform]bool, len(b.Platforms))
	for _, p := range b.Platforms {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown platform %q", ErrInvalidBrief, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate platform %q", ErrInvalidBrief, p)
		}
		seen[p] = true
	}
	return nil
}

// Fixed output cardinalities. These are part of the stage output contracts.
const (
	HookCount          = 3
	HashtagCount       = 5
	ImagePromptCount   = 3
	FilmingPlanCount   = 5
	PresenterLineCount = 6
	IdeaCount          = 7
)

// CopywriterOutput is the copywriter stage output.
type CopywriterOutput struct {
	Title       string   `json:"title"`
	Hooks       []string `json:"hooks"`
	Script      string   `json:"script"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	CTA         string   `json:"cta"`
}

// Validate checks the copywriter output contract.
func (o CopywriterOutput) Validate() error {
	if o.Title == "" {
		return fmt.Errorf("%w: copywriter title is empty", ErrInvalidOutput)
	}
	if len(o.Hooks) != HookCount {
		return fmt.Errorf("%w: copywriter must produce %d hooks, got %d", ErrInvalidOutput, HookCount, len(o.Hooks))
	}
	if o.Script == "" {
		return fmt.Errorf("%w: copywriter script is empty", ErrInvalidOutput)
	}
	if len(o.Hashtags) != HashtagCount {
		return fmt.Errorf("%w: copywriter must produce %d hashtags, got %d", ErrInvalidOutput, HashtagCount, len(o.Hashtags))
	}
	return nil
}

// EditorOutput is the editor stage output: two tone variants plus the list of
// applied improvements.
type EditorOutput struct {
	VersionA     string   `json:"version_a"`
	VersionB     string   `json:"version_b"`
	Improvements []string `json:"improvements"`
}

// Validate checks the editor output contract.
func (o EditorOutput) Validate() error {
	if o.VersionA == "" || o.VersionB == "" {
		return fmt.Errorf("%w: editor must produce both versions", ErrInvalidOutput)
	}
	return nil
}

// ImagePrompt is a single generation prompt with composition guidance.
type ImagePrompt struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	Composition string `json:"composition"`
}

// ImagesOutput is the per-platform imagery stage output.
type ImagesOutput struct {
	ImagePrompts             []ImagePrompt `json:"image_prompts"`
	ThumbnailRecommendations []string      `json:"thumbnail_recommendations"`
	ColorPalette             []string      `json:"color_palette"`
}

// Validate checks the imagery output contract.
func (o ImagesOutput) Validate() error {
	if len(o.ImagePrompts) != ImagePromptCount {
		return fmt.Errorf("%w: images must produce %d prompts, got %d", ErrInvalidOutput, ImagePromptCount, len(o.ImagePrompts))
	}
	return nil
}

// FilmingPlan is a single production shot suggestion.
type FilmingPlan struct {
	ShotType   string `json:"shot_type"`
	Background string `json:"background"`
	Lighting   string `json:"lighting"`
}

// ProductionOutput is the per-platform production stage output.
type ProductionOutput struct {
	FilmingPlans   []FilmingPlan `json:"filming_plans"`
	PresenterLines []string      `json:"presenter_lines"`
	EditingRhythm  string        `json:"editing_rhythm"`
}

// Validate checks the production output contract.
func (o ProductionOutput) Validate() error {
	if len(o.FilmingPlans) != FilmingPlanCount {
		return fmt.Errorf("%w: production must produce %d filming plans, got %d", ErrInvalidOutput, FilmingPlanCount, len(o.FilmingPlans))
	}
	if len(o.PresenterLines) != PresenterLineCount {
		return fmt.Errorf("%w: production must produce %d presenter lines, got %d", ErrInvalidOutput, PresenterLineCount, len(o.PresenterLines))
	}
	return nil
}

// ContentIdea is a single unsolicited content idea.
type ContentIdea struct {
	Title          string     `json:"title"`
	Concept        string     `json:"concept"`
	ViralPotential float64    `json:"viral_potential"`
	PlatformFit    []Platform `json:"platform_fit"`
}

// IdeasOutput is the ideation stage output.
type IdeasOutput struct {
	ContentIdeas   []ContentIdea `json:"content_ideas"`
	TrendingTopics []string      `json:"trending_topics"`
}

// Validate checks the ideation output contract.
func (o IdeasOutput) Validate() error {
	if len(o.ContentIdeas) != IdeaCount {
		return fmt.Errorf("%w: ideation must produce %d ideas, got %d", ErrInvalidOutput, IdeaCount, len(o.ContentIdeas))
	}
	for i, idea := range o.ContentIdeas {
		if idea.ViralPotential < 0 || idea.ViralPotential > 1 {
			return fmt.Errorf("%w: idea %d viral potential %f outside [0,1]", ErrInvalidOutput, i, idea.ViralPotential)
		}
	}
	return nil
}

// PublicoOutput is the public-response stage output.
type PublicoOutput struct {
	Response          string `json:"response"`
	FollowUp          string `json:"follow_up,omitempty"`
	EscalateToSupport bool   `json:"escalate_to_support"`
}

// Validate checks the public-response output contract.
func (o PublicoOutput) Validate() error {
	if o.Response == "" {
		return fmt.Errorf("%w: public response is empty", ErrInvalidOutput)
	}
	return nil
}

// StageResult is a tagged union of stage outputs. Exactly one output field is
// set, matching Stage.
type StageResult struct {
	Stage      Stage             `json:"stage"`
	Platform   Platform          `json:"platform,omitempty"`
	Copywriter *CopywriterOutput `json:"copywriter,omitempty"`
	Editor     *EditorOutput     `json:"editor,omitempty"`
	Images     *ImagesOutput     `json:"images,omitempty"`
	Production *ProductionOutput `json:"production,omitempty"`
	Ideas      *IdeasOutput      `json:"ideas,omitempty"`
	Publico    *PublicoOutput    `json:"publico,omitempty"`
}

// Validate checks that the result carries exactly the output its stage
// declares and that the output satisfies its cardinality contract.
func (r StageResult) Validate() error {
	switch r.Stage {
	case StageCopywriter:
		if r.Copywriter == nil {
			return fmt.Errorf("%w: missing copywriter output", ErrInvalidOutput)
		}
		return r.Copywriter.Validate()
	case StageEditor:
		if r.Editor == nil {
			return fmt.Errorf("%w: missing editor output", ErrInvalidOutput)
		}
		return r.Editor.Validate()
	case StageImages:
		if r.Images == nil {
			return fmt.Errorf("%w: missing images output", ErrInvalidOutput)
		}
		if !r.Platform.Valid() {
			return fmt.Errorf("%w: images result requires a platform", ErrInvalidOutput)
		}
		return r.Images.Validate()
	case StageProduction:
		if r.Production == nil {
			return fmt.Errorf("%w: missing production output", ErrInvalidOutput)
		}
		if !r.Platform.Valid() {
			return fmt.Errorf("%w: production result requires a platform", ErrInvalidOutput)
		}
		return r.Production.Validate()
	case StageIdeas:
		if r.Ideas == nil {
			return fmt.Errorf("%w: missing ideas output", ErrInvalidOutput)
		}
		return r.Ideas.Validate()
	case StagePublico:
		if r.Publico == nil {
			return fmt.Errorf("%w: missing publico output", ErrInvalidOutput)
		}
		return r.Publico.Validate()
	default:
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidOutput, r.Stage)
	}
}

// Package aggregates the brief and every stage result produced for a task.
// It is immutable once the owning task reaches a terminal status.
type Package struct {
	TaskID     string                         `json:"task_id"`
	Brief      Brief                          `json:"brief"`
	CreatedAt  time.Time                      `json:"created_at"`
	Status     TaskStatus                     `json:"status"`
	Copywriter *CopywriterOutput              `json:"copywriter_result,omitempty"`
	Editor     *EditorOutput                  `json:"editor_result,omitempty"`
	Ideas      *IdeasOutput                   `json:"content_ideas,omitempty"`
	Images     map[Platform]*ImagesOutput     `json:"images_results,omitempty"`
	Production map[Platform]*ProductionOutput `json:"production_results,omitempty"`
}

// NewPackage creates an empty package for a task.
func NewPackage(taskID string, brief Brief) *Package {
	return &Package{
		TaskID:     taskID,
		Brief:      brief,
		CreatedAt:  time.Now().UTC(),
		Images:     make(map[Platform]*ImagesOutput),
		Production: make(map[Platform]*ProductionOutput),
	}
}

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusError      TaskStatus = "error"
)

// Terminal reports whether the status is terminal.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is a registered content generation request.
type Task struct {
	ID        string     `json:"task_id"`
	Brief     Brief      `json:"brief"`
	Status    TaskStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Result    *Package   `json:"result,omitempty"`
}
