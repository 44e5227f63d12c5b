package activities

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/extract"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/pipeline"
	"github.com/thothlabs/coursegen/internal/profile"
	"github.com/thothlabs/coursegen/internal/schema"
	"github.com/thothlabs/coursegen/internal/search"
)

// ResearchInput is the input for the Research stage handler.
type ResearchInput struct {
	ActorID         string `json:"actor_id"`
	TopicHint       string `json:"topic_hint"`
	AnalysisContext string `json:"analysis_context"`
}

// ResearchResult is the Research stage delta.
type ResearchResult struct {
	Research      *pipeline.MarketResearch `json:"research"`
	Query         string                   `json:"query"`
	Expertise     string                   `json:"expertise"`
	ResultsUsed   int                      `json:"results_used"`
	KnownFiltered int                      `json:"known_filtered"`
	TokensUsed    int                      `json:"tokens_used"`
}

// PerformResearch builds a search query from the topic hint, caller
// context, and the learner's known concepts, filters out results the
// learner already covers, and synthesizes a structured market research
// object from the remainder.
func (a *Activities) PerformResearch(ctx context.Context, in ResearchInput) (_ ResearchResult, err error) {
	start := time.Now()
	defer func() { observeStage("research", start, err) }()

	learner := a.learnerOrEmpty(ctx, in.ActorID)

	query := buildResearchQuery(in.TopicHint, in.AnalysisContext, learner)

	results, err := a.search.Search(ctx, query)
	if err != nil {
		return ResearchResult{}, fmt.Errorf("research search: %w", err)
	}

	kept, filtered := filterKnown(results, learner)

	prompt := researchPrompt(in, learner, kept)
	completion, err := a.completion.Complete(ctx, researchRequest(prompt))
	if err != nil {
		return ResearchResult{}, fmt.Errorf("research completion: %w", err)
	}

	var research pipeline.MarketResearch
	if !extract.Decode(completion.Text, &research) {
		return ResearchResult{}, unusable("research", fmt.Errorf("no structured object in %d bytes of output", len(completion.Text)))
	}

	if vs := schema.Validate([]schema.Rule{
		schema.NonEmptySlice("trends", research.Trends),
		schema.RequiredString("target_audience", research.TargetAudience),
		schema.RequiredString("reasoning", research.Reasoning),
		schema.Range("viability_score", research.ViabilityScore, 0, 1),
	}); vs != nil {
		return ResearchResult{}, unusable("research", vs)
	}

	a.logger.Info("Research synthesized",
		zap.String("actor_id", in.ActorID),
		zap.Int("results_used", len(kept)),
		zap.Int("known_filtered", filtered),
		zap.Float64("viability", research.ViabilityScore),
	)

	return ResearchResult{
		Research:      &research,
		Query:         query,
		Expertise:     learner.ExpertiseLevel,
		ResultsUsed:   len(kept),
		KnownFiltered: filtered,
		TokensUsed:    completion.TokensUsed,
	}, nil
}

func (a *Activities) learnerOrEmpty(ctx context.Context, actorID string) *profile.Learner {
	learner, err := a.profiles.LearnerProfile(ctx, actorID)
	if err != nil {
		a.logger.Warn("Learner profile unavailable, proceeding without context",
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
		return &profile.Learner{ActorID: actorID, ExpertiseLevel: "beginner"}
	}
	return learner
}

func buildResearchQuery(topicHint, analysisContext string, learner *profile.Learner) string {
	var parts []string
	if strings.TrimSpace(topicHint) != "" {
		parts = append(parts, strings.TrimSpace(topicHint))
	}
	if strings.TrimSpace(analysisContext) != "" {
		parts = append(parts, strings.TrimSpace(analysisContext))
	}
	parts = append(parts, "course market demand trends")
	if len(learner.KnownConcepts) > 0 {
		// Steer search toward ground the learner has not covered yet.
		exclude := learner.KnownConcepts
		if len(exclude) > 5 {
			exclude = exclude[:5]
		}
		parts = append(parts, "-"+strings.Join(exclude, " -"))
	}
	return strings.Join(parts, " ")
}

// filterKnown drops results whose title or content overlaps a concept
// the learner already knows.
func filterKnown(results []search.Result, learner *profile.Learner) ([]search.Result, int) {
	if len(learner.KnownConcepts) == 0 {
		return results, 0
	}
	kept := make([]search.Result, 0, len(results))
	filtered := 0
	for _, r := range results {
		if learner.KnowsAbout(r.Title) || learner.KnowsAbout(r.Content) {
			filtered++
			continue
		}
		kept = append(kept, r)
	}
	return kept, filtered
}

func researchRequest(prompt string) llm.CompletionRequest {
	return llm.CompletionRequest{Prompt: prompt, Temperature: 0.7, MaxTokens: 1500}
}

func researchPrompt(in ResearchInput, learner *profile.Learner, results []search.Result) string {
	var b strings.Builder
	b.WriteString("You are a curriculum market analyst. Synthesize the search results below into a market research assessment for a new course.\n\n")
	fmt.Fprintf(&b, "Course context: %s\n", in.AnalysisContext)
	if in.TopicHint != "" {
		fmt.Fprintf(&b, "Topic hint: %s\n", in.TopicHint)
	}
	fmt.Fprintf(&b, "Learner expertise level: %s\n", learner.ExpertiseLevel)
	if len(learner.KnownConcepts) > 0 {
		fmt.Fprintf(&b, "Already covered (do not base demand on these): %s\n", strings.Join(learner.KnownConcepts, ", "))
	}
	b.WriteString("\nSearch results:\n")
	if len(results) == 0 {
		b.WriteString("(none — reason from general knowledge of the topic)\n")
	}
	for i, r := range results {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "%d. %s — %s\n   %s\n", i+1, r.Title, r.URL, truncate(r.Content, 300))
	}
	b.WriteString(`
Respond with JSON only:
{
  "trends": ["..."],
  "demand_indicators": ["..."],
  "target_audience": "...",
  "competitive_notes": ["..."],
  "viability_score": 0.0,
  "reasoning": "..."
}
viability_score is a 0-1 estimate of course viability.`)
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
