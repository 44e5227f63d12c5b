package workflows

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/thothlabs/coursegen/internal/pipeline"
)

// CourseRefinementWorkflow is the lightweight sub-pipeline: it takes
// an already-authored course, re-scores it, and runs refinement passes
// until quality clears the gate or the (much smaller) step budget
// runs out. It never re-researches or re-authors content.
func CourseRefinementWorkflow(ctx workflow.Context, input RefinementInput) (GenerationResult, error) {
	logger := workflow.GetLogger(ctx)

	if input.Content == nil || len(input.Content.Units) == 0 {
		return GenerationResult{}, temporal.NewApplicationError(
			"refinement requires existing course content", ErrTypePipelineFailed,
		)
	}
	logger.Info("Starting course refinement",
		"actor_id", input.ActorID,
		"title", input.Content.Title,
		"units", len(input.Content.Units),
	)

	cfg, err := fetchPipelineConfig(withStageOptions(ctx, defaultUnitTimeout))
	if err != nil {
		return GenerationResult{}, err
	}
	ctx = withStageOptions(ctx, unitTimeout(cfg))

	requestID := input.RequestID
	if requestID == "" {
		requestID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	structure := *input.Content
	content := *input.Content
	r := &run{
		cfg: cfg,
		state: &pipeline.State{
			Stage:           pipeline.StageQualityCheck,
			RequestID:       requestID,
			ActorID:         input.ActorID,
			MarketResearch:  input.Research,
			CourseStructure: &structure,
			CourseContent:   &content,
			ContentMetrics: &pipeline.ContentMetrics{
				TotalUnits:   len(content.Units),
				SuccessCount: len(content.Units),
				SuccessRatio: 1,
			},
		},
	}
	return r.drive(ctx, cfg.RefinementMaxSteps)
}
