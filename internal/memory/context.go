package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Context section labels, in assembly order.
const (
	sectionPriorContent    = "=== PRIOR SIMILAR CONTENT ==="
	sectionBrandGuidelines = "=== BRAND GUIDELINES ==="
	sectionTrendInsights   = "=== TREND INSIGHTS ==="
)

// BuildContext assembles a bounded retrieval context for a brief: prior
// similar content, brand guidelines and trend insights, each section omitted
// when its search returns nothing. Snippets are truncated to the configured
// preview length to keep the total context small.
//
// BuildContext never fails; on any internal degradation it returns whatever
// sections were assembled, possibly the empty string, so the pipeline can
// proceed without retrieval augmentation.
func (s *Store) BuildContext(ctx context.Context, brief pipeline.Brief) string {
	var parts []string

	prior := s.Search(ctx, CategoryContentHistory,
		fmt.Sprintf("%s %s", brief.Topic, brief.TargetAudience), s.config.ContentK)
	if len(prior) > 0 {
		parts = append(parts, sectionPriorContent)
		for _, r := range prior {
			parts = append(parts, "- "+s.preview(r.Content))
		}
	}

	brand := s.Search(ctx, CategoryBrandKnowledge,
		fmt.Sprintf("%s %s", brief.Topic, brief.Tonality), s.config.BrandK)
	if len(brand) > 0 {
		parts = append(parts, sectionBrandGuidelines)
		for _, r := range brand {
			parts = append(parts, "- "+s.preview(r.Content))
		}
	}

	trendQuery := "current trends"
	if len(brief.Platforms) > 0 {
		trendQuery = fmt.Sprintf("%s trends", brief.Platforms[0])
	}
	trends := s.Search(ctx, CategoryTrendInsight, trendQuery, s.config.TrendK)
	if len(trends) > 0 {
		parts = append(parts, sectionTrendInsights)
		for _, r := range trends {
			parts = append(parts, "- "+s.preview(r.Content))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	blob := strings.Join(parts, "\n")

	s.logger.Debug("assembled retrieval context",
		zap.String("topic", brief.Topic),
		zap.Int("prior", len(prior)),
		zap.Int("brand", len(brand)),
		zap.Int("trends", len(trends)),
	)
	return blob
}

// preview truncates a snippet to at most the configured preview length,
// backing up to a rune boundary so multi-byte text is never split mid-rune.
func (s *Store) preview(text string) string {
	if len(text) <= s.config.PreviewLength {
		return text
	}
	end := s.config.PreviewLength
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end] + "..."
}

// StoreContentPackage flattens a completed package into the content history
// so future briefs can retrieve it. Returns the task id as the source id.
func (s *Store) StoreContentPackage(ctx context.Context, pkg *pipeline.Package) (string, error) {
	if pkg == nil {
		return "", ErrEmptyText
	}

	brief := pkg.Brief
	platforms := make([]string, len(brief.Platforms))
	for i, p := range brief.Platforms {
		platforms[i] = string(p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", brief.Topic)
	fmt.Fprintf(&b, "Audience: %s\n", brief.TargetAudience)
	fmt.Fprintf(&b, "Tonality: %s\n", brief.Tonality)
	fmt.Fprintf(&b, "Platforms: %s\n", strings.Join(platforms, ", "))
	fmt.Fprintf(&b, "Duration: %ds\n", brief.Duration)
	if brief.AdditionalContext != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", brief.AdditionalContext)
	}

	if cw := pkg.Copywriter; cw != nil {
		fmt.Fprintf(&b, "\nTitle: %s\n", cw.Title)
		fmt.Fprintf(&b, "Script: %s\n", cw.Script)
		fmt.Fprintf(&b, "Description: %s\n", cw.Description)
		fmt.Fprintf(&b, "Hashtags: %s\n", strings.Join(cw.Hashtags, ", "))
	}
	if ideas := pkg.Ideas; ideas != nil {
		lines := make([]string, len(ideas.ContentIdeas))
		for i, idea := range ideas.ContentIdeas {
			lines[i] = fmt.Sprintf("%s: %s", idea.Title, idea.Concept)
		}
		fmt.Fprintf(&b, "\nGenerated ideas: %s\n", strings.Join(lines, "; "))
	}

	metadata := map[string]string{
		"type":       "content_package",
		"task_id":    pkg.TaskID,
		"topic":      brief.Topic,
		"tonality":   string(brief.Tonality),
		"audience":   brief.TargetAudience,
		"platforms":  strings.Join(platforms, ","),
		"duration":   strconv.Itoa(brief.Duration),
		"status":     string(pkg.Status),
		"created_at": pkg.CreatedAt.Format(time.RFC3339),
	}

	return s.Ingest(ctx, CategoryContentHistory, pkg.TaskID, b.String(), metadata)
}

// StoreBrandGuideline ingests a brand guideline or persona document.
func (s *Store) StoreBrandGuideline(ctx context.Context, title, content, kind string) (string, error) {
	if kind == "" {
		kind = "guideline"
	}
	metadata := map[string]string{
		"type":       "brand_guideline",
		"title":      title,
		"kind":       kind,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	return s.Ingest(ctx, CategoryBrandKnowledge, "", content, metadata)
}

// StoreTrendInsight ingests a trend observation tagged with the platforms it
// applies to.
func (s *Store) StoreTrendInsight(ctx context.Context, trend, description string, platforms []pipeline.Platform) (string, error) {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}

	content := fmt.Sprintf("Trend: %s\nDescription: %s\nPlatforms: %s",
		trend, description, strings.Join(names, ", "))
	metadata := map[string]string{
		"type":       "trend_insight",
		"trend":      trend,
		"platforms":  strings.Join(names, ","),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	return s.Ingest(ctx, CategoryTrendInsight, "", content, metadata)
}

// Ensure Store satisfies the orchestrator's retrieval surface.
var _ pipeline.Memory = (*Store)(nil)
