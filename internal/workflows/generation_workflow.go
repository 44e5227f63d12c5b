package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/thothlabs/coursegen/internal/activities"
	"github.com/thothlabs/coursegen/internal/pipeline"
)

// CourseGenerationWorkflow is the top-level run: research, structure,
// parallel content authoring, quality scoring, and conditional
// refinement, ending in a persisted course artifact.
func CourseGenerationWorkflow(ctx workflow.Context, input GenerationInput) (GenerationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting course generation",
		"actor_id", input.ActorID,
		"topic_hint", input.TopicHint,
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

	r := &run{
		cfg: cfg,
		state: &pipeline.State{
			Stage:           pipeline.StageResearch,
			RequestID:       requestID,
			ActorID:         input.ActorID,
			TopicHint:       input.TopicHint,
			AnalysisContext: input.AnalysisContext,
		},
	}
	return r.drive(ctx, cfg.MaxSteps)
}

const defaultUnitTimeout = 5 * time.Minute

// unitTimeout resolves the per-activity timeout from the run's config
// snapshot. Zero means the operator left the knob unset.
func unitTimeout(cfg activities.PipelineConfigResult) time.Duration {
	if cfg.UnitTimeoutMS <= 0 {
		return defaultUnitTimeout
	}
	return time.Duration(cfg.UnitTimeoutMS) * time.Millisecond
}

// withStageOptions configures activity execution for stage handlers.
// Temporal's own retry is disabled: the driver loop implements the
// stage-level retry policy itself so the attempt count and backoff
// are explicit in the run's audit trail.
func withStageOptions(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

// fetchPipelineConfig snapshots the tunable knobs once per run so the
// rest of the workflow stays deterministic under replay.
func fetchPipelineConfig(ctx workflow.Context) (activities.PipelineConfigResult, error) {
	var cfg activities.PipelineConfigResult
	err := workflow.ExecuteActivity(ctx, activities.GetPipelineConfigActivity).Get(ctx, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("fetch pipeline config: %w", err)
	}
	return cfg, nil
}

// run carries one pipeline execution. Only drive mutates the state.
type run struct {
	state      *pipeline.State
	cfg        activities.PipelineConfigResult
	expertise  string
	tokensUsed int
}

// drive is the orchestrator loop: execute the current stage, merge its
// delta, ask the supervisor for the next stage, and repeat until a
// terminal stage or the step budget. A stage that fails transiently is
// retried in place with linear backoff up to the configured bound.
func (r *run) drive(ctx workflow.Context, maxSteps int) (GenerationResult, error) {
	logger := workflow.GetLogger(ctx)
	s := r.state

	for s.Stage != pipeline.StageFinish && s.Stage != pipeline.StageError {
		if s.StepCount >= maxSteps {
			return GenerationResult{}, temporal.NewApplicationError(
				fmt.Sprintf("step budget exceeded: %d steps, last stage %s", s.StepCount, s.Stage),
				ErrTypeStepBudgetExceeded,
			)
		}
		s.StepCount++

		if err := r.executeStage(ctx); err != nil {
			s.RetryCount++
			s.Append(fmt.Sprintf("%s attempt %d failed: %v", s.Stage, s.RetryCount, err))
			if s.RetryCount >= r.cfg.StageRetryLimit {
				return GenerationResult{}, temporal.NewApplicationError(
					fmt.Sprintf("stage %s failed after %d attempts: %v", s.Stage, s.RetryCount, err),
					ErrTypeMaxRetriesExceeded,
				)
			}
			backoff := time.Duration(r.cfg.RetryBackoffBaseMS) * time.Millisecond * time.Duration(s.RetryCount)
			logger.Warn("Stage failed, retrying",
				"stage", s.Stage,
				"attempt", s.RetryCount,
				"backoff", backoff,
			)
			if err := workflow.Sleep(ctx, backoff); err != nil {
				return GenerationResult{}, err
			}
			continue
		}

		next := pipeline.Decide(s)
		if next != s.Stage {
			s.RetryCount = 0
		}
		logger.Info("Stage complete",
			"stage", s.Stage,
			"next", next,
			"step", s.StepCount,
		)
		s.Stage = next
	}

	if s.Stage == pipeline.StageError {
		last := "no audit trail"
		if len(s.Messages) > 0 {
			last = s.Messages[len(s.Messages)-1]
		}
		return GenerationResult{}, temporal.NewApplicationError(
			fmt.Sprintf("pipeline ended in error state: %s", last),
			ErrTypePipelineFailed,
		)
	}

	return r.finish(ctx)
}

func (r *run) executeStage(ctx workflow.Context) error {
	switch r.state.Stage {
	case pipeline.StageResearch:
		return r.stageResearch(ctx)
	case pipeline.StageStructure:
		return r.stageStructure(ctx)
	case pipeline.StageContent:
		return r.stageContent(ctx)
	case pipeline.StageQualityCheck:
		return r.stageQualityCheck(ctx)
	case pipeline.StageRefine:
		return r.stageRefine(ctx)
	}
	return fmt.Errorf("no handler for stage %s", r.state.Stage)
}

func (r *run) stageResearch(ctx workflow.Context) error {
	s := r.state
	var res activities.ResearchResult
	err := workflow.ExecuteActivity(ctx, activities.PerformResearchActivity, activities.ResearchInput{
		ActorID:         s.ActorID,
		TopicHint:       s.TopicHint,
		AnalysisContext: s.AnalysisContext,
	}).Get(ctx, &res)
	if err != nil {
		return err
	}
	s.MarketResearch = res.Research
	r.expertise = res.Expertise
	r.tokensUsed += res.TokensUsed
	s.Append(fmt.Sprintf("research complete: %d results used, %d filtered as known, viability %.2f",
		res.ResultsUsed, res.KnownFiltered, res.Research.ViabilityScore))
	return nil
}

func (r *run) stageStructure(ctx workflow.Context) error {
	s := r.state
	var res activities.StructureResult
	err := workflow.ExecuteActivity(ctx, activities.GenerateStructureActivity, activities.StructureInput{
		ActorID:         s.ActorID,
		TopicHint:       s.TopicHint,
		AnalysisContext: s.AnalysisContext,
		Research:        s.MarketResearch,
	}).Get(ctx, &res)
	if err != nil {
		return err
	}
	s.CourseStructure = res.Structure
	r.tokensUsed += res.TokensUsed
	s.Append(fmt.Sprintf("structure complete: %q with %d units, %d fields defaulted",
		res.Structure.Title, len(res.Structure.Units), len(res.Defaulted)))
	return nil
}

// stageContent fans out one authoring activity per unit skeleton and
// joins the futures by index, so results land in skeleton order no
// matter which unit finishes first. A failed unit becomes a
// placeholder and feeds the failure tally; it never aborts siblings.
func (r *run) stageContent(ctx workflow.Context) error {
	s := r.state
	skeleton := s.CourseStructure

	futures := make([]workflow.Future, len(skeleton.Units))
	for i, unit := range skeleton.Units {
		futures[i] = workflow.ExecuteActivity(ctx, activities.GenerateUnitContentActivity, activities.UnitContentInput{
			Unit:           unit,
			CourseTitle:    skeleton.Title,
			CourseContext:  skeleton.Description,
			Expertise:      r.expertise,
			InteractiveMin: r.cfg.InteractiveMin,
			InteractiveMax: r.cfg.InteractiveMax,
		})
	}

	units := make([]pipeline.ContentUnit, len(skeleton.Units))
	success := 0
	for i, f := range futures {
		var res activities.UnitContentResult
		if err := f.Get(ctx, &res); err != nil {
			units[i] = activities.PlaceholderUnit(skeleton.Units[i], err.Error())
			s.Append(fmt.Sprintf("unit %d failed: %v", skeleton.Units[i].Order, err))
			continue
		}
		units[i] = res.Unit
		r.tokensUsed += res.TokensUsed
		success++
	}

	content := *skeleton
	content.Units = units
	s.CourseContent = &content

	total := len(units)
	ratio := 0.0
	if total > 0 {
		ratio = float64(success) / float64(total)
	}
	s.ContentMetrics = &pipeline.ContentMetrics{
		TotalUnits:   total,
		SuccessCount: success,
		FailureCount: total - success,
		SuccessRatio: ratio,
	}
	s.Append(fmt.Sprintf("content complete: %d/%d units authored (ratio %.2f)", success, total, ratio))
	return nil
}

// stageQualityCheck scores every unit concurrently, then issues one
// course-level assessment. Unit quality scores become visible on the
// units themselves only here.
func (r *run) stageQualityCheck(ctx workflow.Context) error {
	s := r.state
	content := s.CourseContent

	futures := make([]workflow.Future, len(content.Units))
	for i, unit := range content.Units {
		futures[i] = workflow.ExecuteActivity(ctx, activities.ScoreUnitActivity, activities.ScoreUnitInput{
			Unit:        unit,
			CourseTitle: content.Title,
		})
	}

	unitQuality := make([]pipeline.UnitQuality, len(content.Units))
	titles := make([]string, len(content.Units))
	averages := make([]float64, len(content.Units))
	sum := 0.0
	for i, f := range futures {
		var res activities.ScoreUnitResult
		if err := f.Get(ctx, &res); err != nil {
			return fmt.Errorf("score unit %d: %w", content.Units[i].Order, err)
		}
		unitQuality[i] = res.Quality
		titles[i] = content.Units[i].Title
		averages[i] = res.Quality.Average
		sum += res.Quality.Average
		r.tokensUsed += res.TokensUsed

		avg := res.Quality.Average
		content.Units[i].QualityScore = &avg
	}
	aggregate := 0.0
	if len(unitQuality) > 0 {
		aggregate = sum / float64(len(unitQuality))
	}

	var assess activities.AssessCourseResult
	err := workflow.ExecuteActivity(ctx, activities.AssessCourseActivity, activities.AssessCourseInput{
		Title:        content.Title,
		Description:  content.Description,
		UnitTitles:   titles,
		UnitAverages: averages,
	}).Get(ctx, &assess)
	if err != nil {
		return err
	}
	r.tokensUsed += assess.TokensUsed

	needsRefinement := aggregate < pipeline.QualityThreshold
	for _, q := range unitQuality {
		if q.Average < pipeline.QualityThreshold {
			needsRefinement = true
		}
	}
	s.QualityReport = &pipeline.QualityReport{
		Units:            unitQuality,
		AggregateAverage: aggregate,
		OverallScore:     assess.OverallScore,
		Strengths:        assess.Strengths,
		Weaknesses:       assess.Weaknesses,
		NeedsRefinement:  needsRefinement,
	}
	s.Append(fmt.Sprintf("quality check complete: aggregate %.2f, overall %.2f", aggregate, assess.OverallScore))
	return nil
}

// stageRefine rewrites only the units whose average fell below the
// quality threshold. Untouched units pass through byte-identical.
func (r *run) stageRefine(ctx workflow.Context) error {
	s := r.state
	content := s.CourseContent

	refined := 0
	for i, q := range s.QualityReport.Units {
		if q.Average >= pipeline.QualityThreshold {
			continue
		}
		var res activities.RefineUnitResult
		err := workflow.ExecuteActivity(ctx, activities.RefineUnitActivity, activities.RefineUnitInput{
			Unit:        content.Units[i],
			Quality:     q,
			CourseTitle: content.Title,
		}).Get(ctx, &res)
		if err != nil {
			return fmt.Errorf("refine unit %d: %w", content.Units[i].Order, err)
		}
		content.Units[i] = res.Unit
		r.tokensUsed += res.TokensUsed
		refined++
	}

	s.Refinements++
	s.Append(fmt.Sprintf("refinement pass %d: %d units rewritten", s.Refinements, refined))
	return nil
}

// finish projects the final artifact, persists it, and assembles the
// caller-visible result.
func (r *run) finish(ctx workflow.Context) (GenerationResult, error) {
	s := r.state
	artifact := pipeline.ProjectArtifact(s, workflow.Now(ctx).UTC())
	if artifact == nil {
		return GenerationResult{}, temporal.NewApplicationError(
			"finished without course content", ErrTypePipelineFailed,
		)
	}

	var persisted activities.PersistCourseResult
	err := workflow.ExecuteActivity(ctx, activities.PersistCourseActivity, activities.PersistCourseInput{
		Artifact: artifact,
		Report:   s.QualityReport,
	}).Get(ctx, &persisted)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("persist course: %w", err)
	}

	workflow.GetLogger(ctx).Info("Course generation finished",
		"course_id", persisted.CourseID,
		"units", len(artifact.Units),
		"steps", s.StepCount,
		"refinements", s.Refinements,
		"tokens_used", r.tokensUsed,
	)

	return GenerationResult{
		CourseID:     persisted.CourseID,
		Artifact:     artifact,
		Steps:        s.StepCount,
		Refinements:  s.Refinements,
		QualityScore: artifact.QualityScore,
		Timestamp:    artifact.CreatedAt,
	}, nil
}
