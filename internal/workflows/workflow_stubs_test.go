package workflows

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/thothlabs/coursegen/internal/activities"
	"github.com/thothlabs/coursegen/internal/pipeline"
)

// pipelineStubs replaces every pipeline activity with an in-memory
// implementation. Tests override individual function fields before
// ExecuteWorkflow; the counters record how often each stage handler
// actually ran. Counters are mutex-guarded because the test
// environment runs fanned-out activities concurrently.
type pipelineStubs struct {
	mu             sync.Mutex
	structureCalls int
	contentCalls   int
	scoreCalls     int
	refineCalls    int
	persistCalls   int

	config    func(context.Context) (activities.PipelineConfigResult, error)
	research  func(context.Context, activities.ResearchInput) (activities.ResearchResult, error)
	structure func(context.Context, activities.StructureInput) (activities.StructureResult, error)
	content   func(context.Context, activities.UnitContentInput) (activities.UnitContentResult, error)
	score     func(context.Context, activities.ScoreUnitInput) (activities.ScoreUnitResult, error)
	assess    func(context.Context, activities.AssessCourseInput) (activities.AssessCourseResult, error)
	refine    func(context.Context, activities.RefineUnitInput) (activities.RefineUnitResult, error)
	persist   func(context.Context, activities.PersistCourseInput) (activities.PersistCourseResult, error)
}

func testPipelineConfig() activities.PipelineConfigResult {
	return activities.PipelineConfigResult{
		MaxSteps:           10,
		RefinementMaxSteps: 3,
		StageRetryLimit:    3,
		RetryBackoffBaseMS: 10,
		UnitTimeoutMS:      60000,
		InteractiveMin:     3,
		InteractiveMax:     7,
	}
}

func testInteractive(n int) []pipeline.InteractiveElement {
	out := make([]pipeline.InteractiveElement, n)
	for i := range out {
		out[i] = pipeline.InteractiveElement{
			Kind:   "quiz",
			Prompt: fmt.Sprintf("question %d", i+1),
			Answer: "42",
		}
	}
	return out
}

func testSkeleton(units int) *pipeline.CourseStructure {
	s := &pipeline.CourseStructure{
		Title:           "Sorting Algorithms from Scratch",
		Description:     "A hands-on tour of classic sorting algorithms.",
		RelevanceScore:  0.8,
		DifficultyScore: 0.4,
		KeyTakeaways:    []string{"compare sorting strategies"},
		Prerequisites:   []string{"basic programming"},
		EstimatedHours:  4,
	}
	for i := 0; i < units; i++ {
		s.Units = append(s.Units, pipeline.ContentUnit{
			Title:           fmt.Sprintf("Unit %d", i+1),
			Order:           i + 1,
			DurationMinutes: 30,
			ContentType:     pipeline.ContentMarkdown,
		})
	}
	return s
}

// defaultStubs builds an all-green backend: valid research, a skeleton
// with the given unit count, successful content for every unit, and
// scores comfortably above the quality gate.
func defaultStubs(units int) *pipelineStubs {
	ps := &pipelineStubs{}
	ps.config = func(context.Context) (activities.PipelineConfigResult, error) {
		return testPipelineConfig(), nil
	}
	ps.research = func(_ context.Context, in activities.ResearchInput) (activities.ResearchResult, error) {
		return activities.ResearchResult{
			Research: &pipeline.MarketResearch{
				Trends:         []string{"interview prep demand"},
				TargetAudience: "junior engineers",
				ViabilityScore: 0.8,
				Reasoning:      "steady search volume",
			},
			Query:     in.TopicHint,
			Expertise: "beginner",
		}, nil
	}
	ps.structure = func(context.Context, activities.StructureInput) (activities.StructureResult, error) {
		return activities.StructureResult{Structure: testSkeleton(units)}, nil
	}
	ps.content = func(_ context.Context, in activities.UnitContentInput) (activities.UnitContentResult, error) {
		unit := in.Unit
		unit.Body = fmt.Sprintf("lesson body for %s", in.Unit.Title)
		unit.InteractiveElements = testInteractive(in.InteractiveMin)
		unit.Generated = true
		return activities.UnitContentResult{Unit: unit}, nil
	}
	ps.score = func(_ context.Context, in activities.ScoreUnitInput) (activities.ScoreUnitResult, error) {
		return activities.ScoreUnitResult{Quality: pipeline.UnitQuality{
			Order: in.Unit.Order,
			Depth: 0.8, PracticalValue: 0.8, Clarity: 0.8, Engagement: 0.8, MarketAlignment: 0.8,
			Average: 0.8,
		}}, nil
	}
	ps.assess = func(context.Context, activities.AssessCourseInput) (activities.AssessCourseResult, error) {
		return activities.AssessCourseResult{
			OverallScore: 0.85,
			Strengths:    []string{"clear progression"},
		}, nil
	}
	ps.refine = func(_ context.Context, in activities.RefineUnitInput) (activities.RefineUnitResult, error) {
		unit := in.Unit
		unit.RevisionHistory = append(unit.RevisionHistory, unit.Body)
		unit.Body = "refined: " + unit.Body
		return activities.RefineUnitResult{Unit: unit}, nil
	}
	ps.persist = func(_ context.Context, in activities.PersistCourseInput) (activities.PersistCourseResult, error) {
		return activities.PersistCourseResult{CourseID: "course-test-1"}, nil
	}
	return ps
}

// register binds the stubs under the production activity names. The
// wrappers call through the function fields so tests can still swap a
// stub after registration.
func (ps *pipelineStubs) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(ctx context.Context) (activities.PipelineConfigResult, error) {
		return ps.config(ctx)
	}, activity.RegisterOptions{Name: activities.GetPipelineConfigActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ResearchInput) (activities.ResearchResult, error) {
		return ps.research(ctx, in)
	}, activity.RegisterOptions{Name: activities.PerformResearchActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.StructureInput) (activities.StructureResult, error) {
		ps.count(&ps.structureCalls)
		return ps.structure(ctx, in)
	}, activity.RegisterOptions{Name: activities.GenerateStructureActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.UnitContentInput) (activities.UnitContentResult, error) {
		ps.count(&ps.contentCalls)
		return ps.content(ctx, in)
	}, activity.RegisterOptions{Name: activities.GenerateUnitContentActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ScoreUnitInput) (activities.ScoreUnitResult, error) {
		ps.count(&ps.scoreCalls)
		return ps.score(ctx, in)
	}, activity.RegisterOptions{Name: activities.ScoreUnitActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.AssessCourseInput) (activities.AssessCourseResult, error) {
		return ps.assess(ctx, in)
	}, activity.RegisterOptions{Name: activities.AssessCourseActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.RefineUnitInput) (activities.RefineUnitResult, error) {
		ps.count(&ps.refineCalls)
		return ps.refine(ctx, in)
	}, activity.RegisterOptions{Name: activities.RefineUnitActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PersistCourseInput) (activities.PersistCourseResult, error) {
		ps.count(&ps.persistCalls)
		return ps.persist(ctx, in)
	}, activity.RegisterOptions{Name: activities.PersistCourseActivity})
}

func (ps *pipelineStubs) count(c *int) {
	ps.mu.Lock()
	*c++
	ps.mu.Unlock()
}

func (ps *pipelineStubs) calls(c *int) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return *c
}

func newPipelineEnv(units int) (*testsuite.TestWorkflowEnvironment, *pipelineStubs) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CourseGenerationWorkflow)
	env.RegisterWorkflow(CourseRefinementWorkflow)
	ps := defaultStubs(units)
	ps.register(env)
	return env, ps
}
