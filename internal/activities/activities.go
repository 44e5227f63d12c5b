// Package activities implements the pipeline's stage handlers as
// Temporal activities. Each handler is a pure function of its typed
// input: it uses the injected backend clients, validates what the
// backend returned, and hands a delta back to the workflow. Handlers
// never touch pipeline state directly.
package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thothlabs/coursegen/internal/config"
	"github.com/thothlabs/coursegen/internal/llm"
	"github.com/thothlabs/coursegen/internal/metrics"
	"github.com/thothlabs/coursegen/internal/profile"
	"github.com/thothlabs/coursegen/internal/search"
)

// Activity registration names. The workflow schedules by name so tests
// can register lightweight stubs.
const (
	GetPipelineConfigActivity   = "GetPipelineConfig"
	PerformResearchActivity     = "PerformResearch"
	GenerateStructureActivity   = "GenerateStructure"
	GenerateUnitContentActivity = "GenerateUnitContent"
	ScoreUnitActivity           = "ScoreUnit"
	AssessCourseActivity        = "AssessCourse"
	RefineUnitActivity          = "RefineUnit"
	PersistCourseActivity       = "PersistCourse"
)

// ProfileProvider resolves learner context for an actor.
type ProfileProvider interface {
	LearnerProfile(ctx context.Context, actorID string) (*profile.Learner, error)
}

// ConfigSource serves the current pipeline configuration snapshot.
type ConfigSource interface {
	Current() *config.Config
}

// Activities holds the injected dependencies for all stage handlers.
type Activities struct {
	completion llm.CompletionClient
	search     search.SearchClient
	profiles   ProfileProvider
	cfg        ConfigSource
	store      CourseStore
	logger     *zap.Logger
}

// NewActivities wires the stage handlers with their collaborators.
func NewActivities(
	completion llm.CompletionClient,
	searcher search.SearchClient,
	profiles ProfileProvider,
	cfg ConfigSource,
	store CourseStore,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		completion: completion,
		search:     searcher,
		profiles:   profiles,
		cfg:        cfg,
		store:      store,
		logger:     logger,
	}
}

// ErrUnusableOutput marks backend output that failed extraction or
// schema validation. The workflow treats it like a transient backend
// failure: retry the stage, never corrupt state.
var ErrUnusableOutput = errors.New("backend output unusable")

// observeStage records one stage handler execution. Used via defer
// with a named error return.
func observeStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StageExecutions.WithLabelValues(stage, status).Inc()
	metrics.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func unusable(stage string, detail error) error {
	return fmt.Errorf("%s: %w: %v", stage, ErrUnusableOutput, detail)
}

// PipelineConfigResult is the deterministic knob snapshot a workflow
// fetches once at the start of a run.
type PipelineConfigResult struct {
	MaxSteps           int `json:"max_steps"`
	RefinementMaxSteps int `json:"refinement_max_steps"`
	StageRetryLimit    int `json:"stage_retry_limit"`
	RetryBackoffBaseMS int `json:"retry_backoff_base_ms"`
	UnitTimeoutMS      int `json:"unit_timeout_ms"`
	InteractiveMin     int `json:"interactive_min"`
	InteractiveMax     int `json:"interactive_max"`
}

// GetPipelineConfig snapshots the tunable knobs for one run. Workflows
// must not read config directly; routing everything through an
// activity keeps replays deterministic.
func (a *Activities) GetPipelineConfig(ctx context.Context) (PipelineConfigResult, error) {
	c := a.cfg.Current()
	return PipelineConfigResult{
		MaxSteps:           c.Pipeline.MaxSteps,
		RefinementMaxSteps: c.Pipeline.RefinementMaxSteps,
		StageRetryLimit:    c.Pipeline.StageRetryLimit,
		RetryBackoffBaseMS: int(c.Pipeline.RetryBackoffBase.Milliseconds()),
		UnitTimeoutMS:      int(c.Pipeline.UnitTimeout.Milliseconds()),
		InteractiveMin:     c.Pipeline.InteractiveMin,
		InteractiveMax:     c.Pipeline.InteractiveMax,
	}, nil
}
