package stages

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// buildPrompt renders the prompt for a stage request.
func buildPrompt(req pipeline.StageRequest) (string, error) {
	switch req.Stage {
	case pipeline.StageCopywriter:
		return copywriterPrompt(req.Brief, req.Context), nil
	case pipeline.StageEditor:
		return editorPrompt(req.Script), nil
	case pipeline.StageImages:
		return imagesPrompt(req.Script, req.Platform), nil
	case pipeline.StageProduction:
		return productionPrompt(req.Script, req.Platform), nil
	case pipeline.StageIdeas:
		return ideasPrompt(req.Brief, req.Context), nil
	case pipeline.StagePublico:
		return publicoPrompt(req.Comment, req.Persona), nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrMalformedOutput, req.Stage)
}

// withContext prepends a retrieval context block when one was assembled.
func withContext(retrievalContext, prompt string) string {
	if retrievalContext == "" {
		return prompt
	}
	return fmt.Sprintf("Use the following background where relevant:\n%s\n\n%s", retrievalContext, prompt)
}

func platformList(platforms []pipeline.Platform) string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func copywriterPrompt(brief pipeline.Brief, retrievalContext string) string {
	prompt := fmt.Sprintf(`You are a social media copywriter. Create content for the topic: %s
Tone: %s
Audience: %s
Platforms: %s
Duration: %ds

Produce:
1. One impactful title
2. Three hooks of 3-7 seconds each
3. A complete script of %d seconds
4. A description optimized for the platforms
5. Five relevant hashtags
6. A persuasive call to action

Respond with a single JSON object with keys: title, hooks, script, description, hashtags, cta.`,
		brief.Topic, brief.Tonality, brief.TargetAudience,
		platformList(brief.Platforms), brief.Duration, brief.Duration)
	if brief.AdditionalContext != "" {
		prompt += "\n\nAdditional brief context: " + brief.AdditionalContext
	}
	return withContext(retrievalContext, prompt)
}

func editorPrompt(script string) string {
	return fmt.Sprintf(`You are an experienced content editor. Refine the following script:
%s

Adjust for:
- Greater clarity and concision
- Removing redundant words
- Natural spoken delivery
- Keeping the original tone

Return:
- Version A: conservative (keeps the structure)
- Version B: concise and high-energy
- The list of improvements applied

Respond with a single JSON object with keys: version_a, version_b, improvements.`, script)
}

func imagesPrompt(script string, platform pipeline.Platform) string {
	return fmt.Sprintf(`You are an AI image prompt specialist. Based on this script:
%s
Platform: %s

Create:
1. Three detailed prompts for Stable Diffusion or Midjourney, each with a style and composition note
2. Three thumbnail recommendations (close-up, crop, upscaling)
3. A suggested color palette

Respect the format and aspect ratio of %s.
Respond with a single JSON object with keys: image_prompts (objects with prompt, style, composition), thumbnail_recommendations, color_palette.`,
		script, platform, platform)
}

func productionPrompt(script string, platform pipeline.Platform) string {
	prompt := fmt.Sprintf(`You are a video production assistant. For this script:
%s
Platform: %s

Suggest:
1. Five filming plans (close, medium, wide and so on), each with shot type, background and lighting
2. Six short presenter lines
3. An editing rhythm`, script, platform)
	if platform == pipeline.PlatformTikTok {
		prompt += " (for TikTok, pace around 3 second cuts)"
	}
	prompt += `

Respond with a single JSON object with keys: filming_plans (objects with shot_type, background, lighting), presenter_lines, editing_rhythm.`
	return prompt
}

func ideasPrompt(brief pipeline.Brief, retrievalContext string) string {
	prompt := fmt.Sprintf(`You are a creative content strategist. Based on:
Original topic: %s
Audience: %s
Tone: %s

Generate 7 content ideas that were NOT directly requested but align with the
persona and current trends. Prioritize formats with high viral probability.
For each idea include an attractive title, a short concept, a viral potential
between 0 and 1, and the best-fitting platforms. Also list the trending
topics you drew on.

Respond with a single JSON object with keys: content_ideas (objects with title, concept, viral_potential, platform_fit), trending_topics.`,
		brief.Topic, brief.TargetAudience, brief.Tonality)
	return withContext(retrievalContext, prompt)
}

func publicoPrompt(comment, persona string) string {
	if persona == "" {
		persona = "young and relaxed brand voice"
	}
	return fmt.Sprintf(`You are the official voice of the brand. Respond to this comment or DM:
%q

Brand persona: %s

Rules:
1. Never promise specific services
2. Be polite and helpful
3. Route complaints to support when needed
4. Keep the tone young and relaxed

Produce the main response, an optional follow-up message, and whether the
conversation should be escalated to support.
Respond with a single JSON object with keys: response, follow_up, escalate_to_support.`,
		comment, persona)
}
