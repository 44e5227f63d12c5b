package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/extract"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/pipeline"
)

// RefineUnitInput carries an underscoring unit plus the quality report
// entry that condemned it.
type RefineUnitInput struct {
	Unit        pipeline.ContentUnit `json:"unit"`
	Quality     pipeline.UnitQuality `json:"quality"`
	CourseTitle string               `json:"course_title"`
}

// RefineUnitResult is the improved unit.
type RefineUnitResult struct {
	Unit       pipeline.ContentUnit `json:"unit"`
	TokensUsed int                  `json:"tokens_used"`
}

// provisionalBump is the optimistic score nudge applied after a
// refinement pass, pending the mandatory re-score.
const provisionalBump = 0.1

// RefineUnit rewrites one unit's body seeded with the specific
// sub-scores and suggestions from its quality assessment. The
// pre-refinement body goes into the revision history.
func (a *Activities) RefineUnit(ctx context.Context, in RefineUnitInput) (_ RefineUnitResult, err error) {
	start := time.Now()
	defer func() { observeStage("refine_unit", start, err) }()

	q := in.Quality
	var b strings.Builder
	fmt.Fprintf(&b, "Improve this course unit. It scored %.2f overall.\nCourse: %s\nUnit %d: %s\n\n", q.Average, in.CourseTitle, in.Unit.Order, in.Unit.Title)
	fmt.Fprintf(&b, "Sub-scores: depth %.2f, practical value %.2f, clarity %.2f, engagement %.2f, market alignment %.2f\n",
		q.Depth, q.PracticalValue, q.Clarity, q.Engagement, q.MarketAlignment)
	if len(q.Suggestions) > 0 {
		fmt.Fprintf(&b, "Reviewer suggestions:\n- %s\n", strings.Join(q.Suggestions, "\n- "))
	}
	if len(q.CriticalIssues) > 0 {
		fmt.Fprintf(&b, "Critical issues to fix:\n- %s\n", strings.Join(q.CriticalIssues, "\n- "))
	}
	fmt.Fprintf(&b, "\nCurrent body:\n%s\n", in.Unit.Body)
	b.WriteString("\nRespond with JSON only: {\"body\": \"the improved lesson body\"}")

	completion, err := a.completion.Complete(ctx, llm.CompletionRequest{Prompt: b.String(), Temperature: 0.6, MaxTokens: 4000})
	if err != nil {
		return RefineUnitResult{}, fmt.Errorf("refine unit %d: %w", in.Unit.Order, err)
	}

	var raw struct {
		Body string `json:"body"`
	}
	if !extract.Decode(completion.Text, &raw) || strings.TrimSpace(raw.Body) == "" {
		return RefineUnitResult{}, unusable(fmt.Sprintf("refine unit %d", in.Unit.Order), fmt.Errorf("no improved body in output"))
	}

	unit := in.Unit
	unit.RevisionHistory = append(unit.RevisionHistory, unit.Body)
	unit.Body = strings.TrimSpace(raw.Body)
	if unit.QualityScore != nil {
		bumped := *unit.QualityScore + provisionalBump
		if bumped > 1 {
			bumped = 1
		}
		unit.QualityScore = &bumped
	}

	metrics.RefinementPasses.Inc()
	a.logger.Info("Unit refined",
		zap.String("course", in.CourseTitle),
		zap.Int("order", unit.Order),
		zap.Int("revisions", len(unit.RevisionHistory)),
	)
	return RefineUnitResult{Unit: unit, TokensUsed: completion.TokensUsed}, nil
}
