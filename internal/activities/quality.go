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

// ScoreUnitInput asks for a quality assessment of one unit.
type ScoreUnitInput struct {
	Unit        pipeline.ContentUnit `json:"unit"`
	CourseTitle string               `json:"course_title"`
}

// ScoreUnitResult carries the five sub-scores and reviewer notes.
type ScoreUnitResult struct {
	Quality    pipeline.UnitQuality `json:"quality"`
	TokensUsed int                  `json:"tokens_used"`
}

// ScoreUnit issues one scoring call and computes the unit average.
func (a *Activities) ScoreUnit(ctx context.Context, in ScoreUnitInput) (_ ScoreUnitResult, err error) {
	start := time.Now()
	defer func() { observeStage("score_unit", start, err) }()

	prompt := fmt.Sprintf(`Assess the quality of this course unit on five 0-1 dimensions.
Course: %s
Unit %d: %s
Body (excerpt): %s
Interactive elements: %d

Respond with JSON only:
{
  "depth": 0.0,
  "practical_value": 0.0,
  "clarity": 0.0,
  "engagement": 0.0,
  "market_alignment": 0.0,
  "suggestions": ["..."],
  "critical_issues": ["..."]
}`,
		in.CourseTitle, in.Unit.Order, in.Unit.Title,
		truncate(in.Unit.Body, 2000), len(in.Unit.InteractiveElements))

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.2, MaxTokens: 800})
	if err != nil {
		return ScoreUnitResult{}, fmt.Errorf("score unit %d: %w", in.Unit.Order, err)
	}

	var raw struct {
		Depth           float64  `json:"depth"`
		PracticalValue  float64  `json:"practical_value"`
		Clarity         float64  `json:"clarity"`
		Engagement      float64  `json:"engagement"`
		MarketAlignment float64  `json:"market_alignment"`
		Suggestions     []string `json:"suggestions"`
		CriticalIssues  []string `json:"critical_issues"`
	}
	if !extract.Decode(completion.Text, &raw) {
		return ScoreUnitResult{}, unusable(fmt.Sprintf("score unit %d", in.Unit.Order), fmt.Errorf("unparseable score output"))
	}

	q := pipeline.UnitQuality{
		Order:           in.Unit.Order,
		Depth:           schema.Clamp01(raw.Depth),
		PracticalValue:  schema.Clamp01(raw.PracticalValue),
		Clarity:         schema.Clamp01(raw.Clarity),
		Engagement:      schema.Clamp01(raw.Engagement),
		MarketAlignment: schema.Clamp01(raw.MarketAlignment),
		Suggestions:     raw.Suggestions,
		CriticalIssues:  raw.CriticalIssues,
	}
	q.Average = (q.Depth + q.PracticalValue + q.Clarity + q.Engagement + q.MarketAlignment) / 5

	return ScoreUnitResult{Quality: q, TokensUsed: completion.TokensUsed}, nil
}

// AssessCourseInput asks for the course-level assessment.
type AssessCourseInput struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	UnitTitles   []string  `json:"unit_titles"`
	UnitAverages []float64 `json:"unit_averages"`
}

// AssessCourseResult carries the aggregate assessment.
type AssessCourseResult struct {
	OverallScore float64  `json:"overall_score"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	TokensUsed   int      `json:"tokens_used"`
}

// AssessCourse issues the single course-level quality call.
func (a *Activities) AssessCourse(ctx context.Context, in AssessCourseInput) (_ AssessCourseResult, err error) {
	start := time.Now()
	defer func() { observeStage("assess_course", start, err) }()

	var scores strings.Builder
	for i, avg := range in.UnitAverages {
		title := ""
		if i < len(in.UnitTitles) {
			title = in.UnitTitles[i]
		}
		fmt.Fprintf(&scores, "- Unit %d (%s): %.2f\n", i+1, title, avg)
	}

	prompt := fmt.Sprintf(`Assess this course as a whole.
Title: %s
Description: %s
Per-unit quality averages:
%s
Respond with JSON only:
{"overall_score": 0.0, "strengths": ["..."], "weaknesses": ["..."]}`,
		in.Title, in.Description, scores.String())

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: prompt, Temperature: 0.2, MaxTokens: 600})
	if err != nil {
		return AssessCourseResult{}, fmt.Errorf("assess course: %w", err)
	}

	var raw AssessCourseResult
	if !extract.Decode(completion.Text, &raw) {
		return AssessCourseResult{}, unusable("assess course", fmt.Errorf("unparseable assessment output"))
	}
	raw.OverallScore = schema.Clamp01(raw.OverallScore)
	raw.TokensUsed = completion.TokensUsed

	a.logger.Info("Course assessed",
		zap.String("title", in.Title),
		zap.Float64("overall", raw.OverallScore),
	)
	return raw, nil
}
