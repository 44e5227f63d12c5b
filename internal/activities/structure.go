package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/extract"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/pipeline"
	"github.com/thothlabs/coursegen/internal/schema"
)

// Defaults applied when the backend omits optional skeleton fields.
// The stage must never fail over a missing optional value; only a
// missing title or an empty unit list forces a retry.
const (
	defaultRelevance      = 0.6
	defaultDifficulty     = 0.5
	defaultUnitDuration   = 30
	defaultEstimatedHours = 4.0
)

// StructureInput is the input for the Structure stage handler.
type StructureInput struct {
	ActorID         string                   `json:"actor_id"`
	TopicHint       string                   `json:"topic_hint"`
	AnalysisContext string                   `json:"analysis_context"`
	Research        *pipeline.MarketResearch `json:"research"`
}

// StructureResult is the Structure stage delta.
type StructureResult struct {
	Structure  *pipeline.CourseStructure `json:"structure"`
	Defaulted  []string                  `json:"defaulted,omitempty"`
	TokensUsed int                       `json:"tokens_used"`
}

// GenerateStructure produces the course skeleton: title, description,
// scalar scores, takeaways, prerequisites, and ordered unit skeletons
// with placeholder bodies.
func (a *Activities) GenerateStructure(ctx context.Context, in StructureInput) (_ StructureResult, err error) {
	start := time.Now()
	defer func() { observeStage("structure", start, err) }()

	learner := a.learnerOrEmpty(ctx, in.ActorID)

	prompt := structurePrompt(in, learner.ExpertiseLevel)
	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.6,
		MaxTokens:   2500,
	})
	if err != nil {
		return StructureResult{}, fmt.Errorf("structure completion: %w", err)
	}

	var raw rawStructure
	if !extract.Decode(completion.Text, &raw) {
		return StructureResult{}, unusable("structure", fmt.Errorf("no structured object in %d bytes of output", len(completion.Text)))
	}

	structure, defaulted := normalizeStructure(raw)

	// Hard identity requirements; everything else was defaulted above.
	if vs := schema.Validate([]schema.Rule{
		schema.RequiredString("title", structure.Title),
		schema.NonEmptySlice("units", structure.Units),
	}); vs != nil {
		return StructureResult{}, unusable("structure", vs)
	}

	a.logger.Info("Structure generated",
		zap.String("title", structure.Title),
		zap.Int("units", len(structure.Units)),
		zap.Strings("defaulted", defaulted),
	)

	return StructureResult{
		Structure:  structure,
		Defaulted:  defaulted,
		TokensUsed: completion.TokensUsed,
	}, nil
}

// rawStructure decodes the backend output loosely; normalizeStructure
// applies the defaulting policy.
type rawStructure struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	RelevanceScore  *float64  `json:"relevance_score"`
	DifficultyScore *float64  `json:"difficulty_score"`
	KeyTakeaways    []string  `json:"key_takeaways"`
	Prerequisites   []string  `json:"prerequisites"`
	EstimatedHours  *float64  `json:"estimated_hours"`
	Units           []rawUnit `json:"units"`
}

type rawUnit struct {
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	DurationMinutes *int   `json:"duration_minutes"`
	ContentType     string `json:"content_type"`
}

func normalizeStructure(raw rawStructure) (*pipeline.CourseStructure, []string) {
	var defaulted []string

	s := &pipeline.CourseStructure{
		Title:         strings.TrimSpace(raw.Title),
		Description:   strings.TrimSpace(raw.Description),
		KeyTakeaways:  raw.KeyTakeaways,
		Prerequisites: raw.Prerequisites,
	}

	if raw.RelevanceScore != nil {
		s.RelevanceScore = schema.Clamp01(*raw.RelevanceScore)
	} else {
		s.RelevanceScore = defaultRelevance
		defaulted = append(defaulted, "relevance_score")
	}
	if raw.DifficultyScore != nil {
		s.DifficultyScore = schema.Clamp01(*raw.DifficultyScore)
	} else {
		s.DifficultyScore = defaultDifficulty
		defaulted = append(defaulted, "difficulty_score")
	}
	if raw.EstimatedHours != nil && schema.Positive("estimated_hours", *raw.EstimatedHours).Ok() {
		s.EstimatedHours = *raw.EstimatedHours
	} else {
		s.EstimatedHours = defaultEstimatedHours
		defaulted = append(defaulted, "estimated_hours")
	}
	if len(s.KeyTakeaways) == 0 {
		s.KeyTakeaways = []string{"Understand the core concepts of " + s.Title}
		defaulted = append(defaulted, "key_takeaways")
	}
	if len(s.Prerequisites) == 0 {
		s.Prerequisites = []string{"None"}
		defaulted = append(defaulted, "prerequisites")
	}

	s.Units = make([]pipeline.ContentUnit, 0, len(raw.Units))
	for i, ru := range raw.Units {
		u := pipeline.ContentUnit{
			Title: strings.TrimSpace(ru.Title),
			Body:  strings.TrimSpace(ru.Summary),
			Order: i + 1,
		}
		if u.Title == "" {
			u.Title = fmt.Sprintf("Unit %d", i+1)
			defaulted = append(defaulted, fmt.Sprintf("units[%d].title", i))
		}
		if ru.DurationMinutes != nil && schema.Positive("duration_minutes", float64(*ru.DurationMinutes)).Ok() {
			u.DurationMinutes = *ru.DurationMinutes
		} else {
			u.DurationMinutes = defaultUnitDuration
		}
		ct := pipeline.ContentType(strings.ToUpper(strings.TrimSpace(ru.ContentType)))
		if schema.OneOf("content_type", ct,
			pipeline.ContentMarkdown, pipeline.ContentLatex, pipeline.ContentCode, pipeline.ContentMixed).Ok() {
			u.ContentType = ct
		} else {
			u.ContentType = pipeline.ContentMarkdown
		}
		s.Units = append(s.Units, u)
	}

	return s, defaulted
}

func structurePrompt(in StructureInput, expertise string) string {
	var b strings.Builder
	b.WriteString("You are a curriculum architect. Design a course skeleton for the request below.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", in.AnalysisContext)
	if in.TopicHint != "" {
		fmt.Fprintf(&b, "Topic hint: %s\n", in.TopicHint)
	}
	fmt.Fprintf(&b, "Learner expertise level: %s\n", expertise)
	if in.Research != nil {
		fmt.Fprintf(&b, "\nMarket research:\n- Target audience: %s\n- Trends: %s\n- Viability: %.2f (%s)\n",
			in.Research.TargetAudience,
			strings.Join(in.Research.Trends, "; "),
			in.Research.ViabilityScore,
			truncate(in.Research.Reasoning, 200),
		)
	}
	b.WriteString(`
Respond with JSON only:
{
  "title": "...",
  "description": "...",
  "relevance_score": 0.0,
  "difficulty_score": 0.0,
  "key_takeaways": ["..."],
  "prerequisites": ["..."],
  "estimated_hours": 0,
  "units": [
    {"title": "...", "summary": "...", "duration_minutes": 30, "content_type": "MARKDOWN"}
  ]
}
Scores are 0-1. content_type is one of MARKDOWN, LATEX, CODE, MIXED.
Order units from fundamentals to advanced; use 4-10 units.`)
	return b.String()
}
