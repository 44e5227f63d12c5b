// Package workflows contains the Temporal workflows that drive course
// generation. The workflow owns the pipeline state for the lifetime of
// one run: it executes the stage the supervisor dictates, merges the
// activity's delta, and loops until a terminal stage or the step
// budget. All backend I/O lives in activities; workflow code stays
// deterministic.
package workflows

import (
	"time"

	"github.com/thothlabs/coursegen/internal/pipeline"
)

// Workflow registration names.
const (
	CourseGenerationWorkflowName = "CourseGenerationWorkflow"
	CourseRefinementWorkflowName = "CourseRefinementWorkflow"
)

// Fatal error types surfaced to the caller. Everything else is
// absorbed and retried inside the run.
const (
	ErrTypeStepBudgetExceeded = "StepBudgetExceeded"
	ErrTypeMaxRetriesExceeded = "MaxRetriesExceeded"
	ErrTypePipelineFailed     = "PipelineFailed"
)

// GenerationInput is the caller-facing request for a full run.
type GenerationInput struct {
	RequestID       string `json:"request_id,omitempty"`
	ActorID         string `json:"actor_id"`
	AnalysisContext string `json:"analysis_context"`
	TopicHint       string `json:"topic_hint,omitempty"`
}

// GenerationResult is the success response: the finalized artifact
// plus generation metadata. Failed runs return a typed error and no
// partial artifact.
type GenerationResult struct {
	CourseID     string                   `json:"course_id"`
	Artifact     *pipeline.CourseArtifact `json:"artifact"`
	Steps        int                      `json:"steps"`
	Refinements  int                      `json:"refinements"`
	QualityScore float64                  `json:"quality_score"`
	Timestamp    time.Time                `json:"timestamp"`
}

// RefinementInput seeds the lightweight sub-pipeline that re-scores
// and refines an already-authored course without regenerating it.
type RefinementInput struct {
	RequestID string                    `json:"request_id,omitempty"`
	ActorID   string                    `json:"actor_id"`
	Content   *pipeline.CourseStructure `json:"content"`
	Research  *pipeline.MarketResearch  `json:"research,omitempty"`
}
